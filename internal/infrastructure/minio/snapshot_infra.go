package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/jitter"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
)

const snapshotPrefix = "image-index"

type objectRepo interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, object *domain.MediaObject, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// SnapshotInfra выгружает пары файлов индекса в MinIO и скачивает их на реплики.
type SnapshotInfra struct {
	repo        objectRepo
	logger      logger.Logger
	shutdownCtx context.Context
	wg          sync.WaitGroup
	uploadLimit int
}

func NewSnapshotInfra(repo objectRepo, uploadLimit int, logger logger.Logger, shutdownCtx context.Context) *SnapshotInfra {
	if uploadLimit <= 0 {
		uploadLimit = 1
	}

	return &SnapshotInfra{
		repo:        repo,
		logger:      logger,
		shutdownCtx: shutdownCtx,
		uploadLimit: uploadLimit,
	}
}

// UploadSnapshot загружает оба файла под новым префиксом версии и возвращает версию.
// Если один из файлов не загрузился, уже загруженные удаляются в фоне.
func (s *SnapshotInfra) UploadSnapshot(ctx context.Context, indexPath, idsPath string) (string, error) {
	const op = "SnapshotInfra.UploadSnapshot"

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	version := fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	files := []string{indexPath, idsPath}

	keyCh := make(chan string, len(files))
	errCh := make(chan error, len(files))
	sem := make(chan struct{}, s.uploadLimit)

	var uploadWg sync.WaitGroup
	for _, file := range files {
		uploadWg.Add(1)
		go func() {
			defer uploadWg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			key, err := s.uploadFile(ctx, version, file)
			if err != nil {
				errCh <- fmt.Errorf("upload %s failed: %w", filepath.Base(file), err)
				cancel()
				return
			}
			keyCh <- key
		}()
	}

	uploadWg.Wait()
	close(errCh)
	close(keyCh)

	keys := make([]string, 0, len(files))
	for key := range keyCh {
		keys = append(keys, key)
	}

	if err, ok := <-errCh; ok {
		s.CleanupObjects(keys)
		return "", e.Wrap(op, err)
	}

	s.logger.Infof("image index snapshot %s uploaded to bucket %s", version, s.repo.Bucket())
	return version, nil
}

func (s *SnapshotInfra) uploadFile(ctx context.Context, version, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", err
	}

	key := path.Join(snapshotPrefix, version, filepath.Base(file))
	object := domain.NewMediaObject(s.repo.Bucket(), key, st.Size(), "application/octet-stream")

	return s.repo.Upload(ctx, object, f)
}

// DownloadSnapshot скачивает пару файлов версии version в указанные пути.
// Каждый файл заменяется атомарно.
func (s *SnapshotInfra) DownloadSnapshot(ctx context.Context, version, indexPath, idsPath string) error {
	for _, file := range []string{indexPath, idsPath} {
		key := path.Join(snapshotPrefix, version, filepath.Base(file))
		if err := s.downloadFile(ctx, key, file); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}

func (s *SnapshotInfra) downloadFile(ctx context.Context, key, file string) error {
	rc, err := s.repo.Open(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(file, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pending.Cleanup()

	if _, err := io.Copy(pending, rc); err != nil {
		return err
	}

	return pending.CloseAtomicallyReplace()
}

// CleanupObjects запускает фоновое удаление указанных ключей MinIO
func (s *SnapshotInfra) CleanupObjects(keys []string) {
	if len(keys) == 0 {
		return
	}
	s.wg.Add(1)
	go s.cleanupKeys(keys)
}

// cleanupKeys удаляет объекты с экспоненциальной задержкой и jitter.
func (s *SnapshotInfra) cleanupKeys(keys []string) {
	defer s.wg.Done()
	const (
		op       = "SnapshotInfra.cleanupKeys"
		attempts = 3
	)
	s.logger.Infof("%s: cleaning up %d snapshot objects", op, len(keys))

	ctx, cancel := context.WithTimeout(s.shutdownCtx, 30*time.Second)
	defer cancel()

	for _, key := range keys {
		for attempt := 0; attempt < attempts; attempt++ {
			if err := s.repo.Delete(ctx, key); err == nil {
				break
			}

			if ctx.Err() != nil {
				s.logger.Warnf("cleanup interrupted by shutdown, key=%v", key)
				return
			}

			if attempt < attempts-1 {
				sleepTime := jitter.ExponentialBackoff(time.Second, 10*time.Second, attempt, jitter.DefaultJitter)
				if err := jitter.Sleep(ctx, sleepTime); err != nil {
					s.logger.Warnf("cleanup interrupted by shutdown during backoff, key=%v", key)
					return
				}
			}
		}
	}
}

// WaitForCleanup ожидает завершения фоновых задач очистки с учётом таймаута завершения приложения.
func (s *SnapshotInfra) WaitForCleanup(shutdownTimeoutCtx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-shutdownTimeoutCtx.Done():
		return fmt.Errorf("minio cleanup timeout during shutdown: %w", shutdownTimeoutCtx.Err())
	}
}
