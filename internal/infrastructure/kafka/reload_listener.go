package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/jitter"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type reloader interface {
	Reload(ctx context.Context) error
}

// SnapshotFetcher скачивает пару файлов индекса версии version.
type SnapshotFetcher interface {
	DownloadSnapshot(ctx context.Context, version, indexPath, idsPath string) error
}

// ReloadListener читает события индекса и перечитывает локальные файлы.
// Каждая реплика подписывается своей группой, чтобы получать все события.
type ReloadListener struct {
	reader    *kafka.Reader
	index     reloader
	snapshots SnapshotFetcher
	indexPath string
	idsPath   string
	origin    string
	logger    logger.Logger
	wg        sync.WaitGroup
}

func NewReloadListener(
	cfg *cfg.KafkaCfg,
	index reloader,
	snapshots SnapshotFetcher,
	indexPath, idsPath string,
	origin string,
	logger logger.Logger,
) *ReloadListener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     fmt.Sprintf("%s-%s", cfg.GroupPrefix, uuid.NewString()),
		StartOffset: kafka.LastOffset,
		MaxWait:     time.Second,
	})

	return &ReloadListener{
		reader:    reader,
		index:     index,
		snapshots: snapshots,
		indexPath: indexPath,
		idsPath:   idsPath,
		origin:    origin,
		logger:    logger,
	}
}

func (l *ReloadListener) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(ctx)
	}()
}

// Stop закрывает reader и ждёт завершения цикла чтения.
func (l *ReloadListener) Stop() error {
	err := l.reader.Close()
	l.wg.Wait()

	return err
}

func (l *ReloadListener) run(ctx context.Context) {
	l.logger.Infof("subscribed to image index events")

	for attempt := 0; ; {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				l.logger.Infof("image index listener stopped")
				return
			}

			sleepTime := jitter.ExponentialBackoff(time.Second, 30*time.Second, attempt, jitter.DefaultJitter)
			l.logger.Warnf("failed to read index event, retrying in %v: %v", sleepTime, err)
			attempt++
			if jitter.Sleep(ctx, sleepTime) != nil {
				return
			}
			continue
		}
		attempt = 0

		var event domain.IndexEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			l.logger.Warnf("skipping malformed index event at offset %d: %v", msg.Offset, err)
			continue
		}

		l.handle(ctx, event)
	}
}

func (l *ReloadListener) handle(ctx context.Context, event domain.IndexEvent) {
	if event.Origin == l.origin {
		return
	}

	if event.Snapshot != "" && l.snapshots != nil {
		if err := l.snapshots.DownloadSnapshot(ctx, event.Snapshot, l.indexPath, l.idsPath); err != nil {
			l.logger.Errorf(err, "failed to download index snapshot %s", event.Snapshot)
			return
		}
	}

	if err := l.index.Reload(ctx); err != nil {
		l.logger.Errorf(err, "failed to reload image index after %s event", event.Operation)
		return
	}

	l.logger.Infof("image index reloaded after %s event %s", event.Operation, event.ID)
}
