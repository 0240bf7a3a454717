package usecase

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/jitter"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/google/uuid"
	"github.com/jimlawless/whereami"
	"golang.org/x/sync/errgroup"
)

// IndexJobKey задаёт ключ блокировки задач индексации.
const IndexJobKey = "image-index"

// IngestOptions — параметры задач индексации.
type IngestOptions struct {
	Concurrency  int
	FetchRetries int
	RetryBase    time.Duration
	TmpDir       string // Родитель временных каталогов задач; по умолчанию системный
	Origin       string // Идентификатор процесса в событиях индекса
	IndexPath    string
	IDsPath      string
}

// IndexDeps — зависимости координатора индексации. Mirror, Publisher и Snapshots необязательны.
type IndexDeps struct {
	Catalog       *CatalogAdapter
	Index         VectorIndex
	Encoder       Encoder
	Fetcher       ImageFetcher
	Fingerprinter Fingerprinter
	Lock          JobLock
	Mirror        VectorMirror
	Publisher     EventPublisher
	Snapshots     SnapshotStore
	TxManager     TxManager
	Runs          IndexRunRepository
	Fingerprints  FingerprintRepository
	Skip          SkipPolicy
}

// IndexUseCase строит и поддерживает векторный индекс по активному каталогу.
type IndexUseCase struct {
	IndexDeps
	opts   IngestOptions
	logger logger.Logger
}

// candidate описывает товар, отобранный для индексации.
type candidate struct {
	id   int64
	ref  string
	path string
}

func NewIndexUC(deps IndexDeps, opts IngestOptions, logger logger.Logger) *IndexUseCase {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.FetchRetries < 0 {
		opts.FetchRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 500 * time.Millisecond
	}
	if deps.Skip == nil {
		deps.Skip = DomainBlacklist(nil)
	}

	return &IndexUseCase{
		IndexDeps: deps,
		opts:      opts,
		logger:    logger,
	}
}

// Build строит индекс с нуля. Без Force существующий непустой индекс не трогается.
func (u *IndexUseCase) Build(ctx context.Context, req BuildReq) (*BuildRes, error) {
	const op = "IndexUseCase.Build"

	unlock, err := u.Lock.Acquire(ctx, IndexJobKey)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer u.release(unlock)

	if !req.Force && u.Index.Initialized() && u.Index.Len() > 0 {
		u.logger.Warnf("index already contains %d vectors, use force to rebuild", u.Index.Len())
		return &BuildRes{Operation: domain.OperationBuild, NoOp: true, IndexSize: u.Index.Len()}, nil
	}

	res, err := u.rebuild(ctx, domain.OperationBuild)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return res, nil
}

// Rebuild перестраивает индекс безусловно.
func (u *IndexUseCase) Rebuild(ctx context.Context) (*BuildRes, error) {
	const op = "IndexUseCase.Rebuild"

	unlock, err := u.Lock.Acquire(ctx, IndexJobKey)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer u.release(unlock)

	res, err := u.rebuild(ctx, domain.OperationRebuild)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return res, nil
}

// repair вызывается проверкой согласованности, которая уже держит блокировку.
func (u *IndexUseCase) repair(ctx context.Context) (*BuildRes, error) {
	return u.rebuild(ctx, domain.OperationRepair)
}

func (u *IndexUseCase) rebuild(ctx context.Context, operation domain.IndexOperation) (*BuildRes, error) {
	started := time.Now().UTC()

	if err := u.Encoder.EnsureReady(ctx); err != nil {
		return nil, err
	}

	// Отбор товаров в порядке возрастания id
	candidates, skipped, total, err := u.collect(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		u.logger.Warnf("catalog has no active products, index left untouched")
		return nil, e.ErrEmptyCatalog
	}

	tmpDir, err := os.MkdirTemp(u.opts.TmpDir, "image-index-*")
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			u.logger.Warnf("failed to remove job directory %s: %v", tmpDir, err)
		}
	}()

	downloaded, failed := u.download(ctx, tmpDir, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, fps, encodeFailed, err := u.encode(ctx, downloaded)
	if err != nil {
		return nil, err
	}
	failed += encodeFailed

	if len(entries) == 0 {
		u.logger.Warnf("no product image could be encoded (failed: %d, skipped: %d), previous index preserved", failed, skipped)
		return nil, e.ErrEmptyRebuild
	}

	if err := u.Index.Rebuild(ctx, entries); err != nil {
		return nil, err
	}

	run := domain.IndexRun{
		ID:        uuid.NewString(),
		Operation: operation,
		Device:    u.Encoder.Device(),
		Indexed:   len(entries),
		Skipped:   skipped,
		Failed:    failed,
		IndexSize: u.Index.Len(),
		StartedAt: started,
	}

	res := &BuildRes{
		Operation: operation,
		Indexed:   run.Indexed,
		Skipped:   run.Skipped,
		Failed:    run.Failed,
		IndexSize: run.IndexSize,
	}

	refs := make(map[int64]string, len(downloaded))
	for _, c := range downloaded {
		refs[c.id] = c.ref
	}

	// Зеркало индекса
	if u.Mirror != nil {
		if err := u.Mirror.Reset(ctx); err != nil {
			u.logger.Warnf("failed to reset vector mirror: %v", err)
		} else if err := u.Mirror.Upsert(ctx, points(entries, refs)); err != nil {
			u.logger.Warnf("failed to sync vector mirror: %v", err)
		}
	}

	res.Snapshot = u.afterChange(ctx, &run, nil, func(ctx context.Context) error {
		return u.Fingerprints.ReplaceAll(ctx, fps)
	})

	u.logger.Infof("index %s finished: indexed=%d skipped=%d failed=%d size=%d",
		operation, res.Indexed, res.Skipped, res.Failed, res.IndexSize)

	return res, nil
}

// collect перечисляет активные товары и отбирает те, у которых есть пригодное изображение.
func (u *IndexUseCase) collect(ctx context.Context) ([]candidate, int, int, error) {
	var (
		candidates []candidate
		skipped    int
		total      int
	)

	for p, err := range u.Catalog.ActiveProducts(ctx) {
		if err != nil {
			return nil, 0, 0, err
		}
		total++

		if !p.HasImage() || u.Skip.Skip(p.ImageRef) {
			skipped++
			continue
		}
		candidates = append(candidates, candidate{id: p.ID, ref: p.ImageRef})
	}

	return candidates, skipped, total, nil
}

// download сохраняет изображения в каталог задачи, по файлу на товар.
// Возвращает успешно загруженные в исходном порядке и число неудач.
func (u *IndexUseCase) download(ctx context.Context, dir string, candidates []candidate) ([]candidate, int) {
	ok := make([]bool, len(candidates))

	var g errgroup.Group
	g.SetLimit(u.opts.Concurrency)
	for i := range candidates {
		g.Go(func() error {
			c := &candidates[i]
			c.path = filepath.Join(dir, strconv.FormatInt(c.id, 10))

			if err := u.fetchWithRetry(ctx, c.ref, c.path); err != nil {
				u.logger.Warnf("skip product %d: %v", c.id, err)
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	downloaded := make([]candidate, 0, len(candidates))
	for i, c := range candidates {
		if ok[i] {
			downloaded = append(downloaded, c)
		}
	}

	return downloaded, len(candidates) - len(downloaded)
}

// fetchWithRetry повторяет временные ошибки загрузки с экспоненциальной задержкой.
func (u *IndexUseCase) fetchWithRetry(ctx context.Context, ref, path string) error {
	var err error
	for attempt := 0; attempt <= u.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			sleepTime := jitter.ExponentialBackoff(u.opts.RetryBase, 10*u.opts.RetryBase, attempt-1, jitter.DefaultJitter)
			if sleepErr := jitter.Sleep(ctx, sleepTime); sleepErr != nil {
				return sleepErr
			}
		}

		if err = u.Fetcher.DownloadTo(ctx, ref, path); err == nil {
			return nil
		}

		var tmp interface{ Temporary() bool }
		if !errors.As(err, &tmp) || !tmp.Temporary() {
			return err
		}
	}

	return err
}

// encode декодирует файлы пачками размера батча энкодера и кодирует каждую пачку.
func (u *IndexUseCase) encode(ctx context.Context, downloaded []candidate) ([]domain.IndexEntry, []domain.ProductFingerprint, int, error) {
	batchSize := max(u.Encoder.BatchSize(), 1)

	var (
		entries []domain.IndexEntry
		fps     []domain.ProductFingerprint
		failed  int
	)

	for start := 0; start < len(downloaded); start += batchSize {
		chunk := downloaded[start:min(start+batchSize, len(downloaded))]

		imgs := make([]image.Image, 0, len(chunk))
		ready := make([]candidate, 0, len(chunk))
		for _, c := range chunk {
			img, err := u.Fetcher.DecodeFile(c.path)
			if err != nil {
				u.logger.Warnf("skip product %d: %v", c.id, err)
				failed++
				continue
			}
			imgs = append(imgs, img)
			ready = append(ready, c)
		}

		if len(imgs) == 0 {
			continue
		}

		vectors, err := u.Encoder.EncodeBatch(ctx, imgs)
		var rows domain.RowErrors
		switch {
		case errors.As(err, &rows):
			for i, rowErr := range rows {
				u.logger.Warnf("skip product %d: %v", ready[i].id, rowErr)
			}
			failed += len(rows)
		case err != nil && (errors.Is(err, e.ErrEncoderUnavailable) || ctx.Err() != nil):
			return nil, nil, 0, err
		case err != nil:
			u.logger.Errorf(err, "failed to encode %d images, skipping the batch", len(imgs))
			failed += len(imgs)
			continue
		}

		for i, c := range ready {
			if vectors[i] == nil {
				continue
			}
			entries = append(entries, domain.IndexEntry{ID: c.id, Vector: vectors[i]})

			if u.Fingerprinter == nil {
				continue
			}
			if fp, err := u.Fingerprinter.FromImage(imgs[i]); err == nil {
				fps = append(fps, domain.ProductFingerprint{ProductID: c.id, Fingerprint: fp, ImageRef: c.ref})
			}
		}
	}

	return entries, fps, failed, nil
}

// UpdateProduct добавляет или заменяет вектор одного товара.
func (u *IndexUseCase) UpdateProduct(ctx context.Context, id int64) (*BuildRes, error) {
	const op = "IndexUseCase.UpdateProduct"

	unlock, err := u.Lock.Acquire(ctx, IndexJobKey)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer u.release(unlock)

	started := time.Now().UTC()

	if err := u.Encoder.EnsureReady(ctx); err != nil {
		return nil, e.Wrap(op, err)
	}

	p := u.Catalog.ByID(ctx, id)
	if p == nil {
		return nil, e.Wrap(op, e.ErrProductUnavailable)
	}
	if !p.HasImage() || u.Skip.Skip(p.ImageRef) {
		u.logger.Warnf("product %d has no usable image", id)
		return nil, e.Wrap(op, e.ErrNoImage)
	}

	tmpDir, err := os.MkdirTemp(u.opts.TmpDir, "image-index-*")
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, strconv.FormatInt(id, 10))
	if err := u.fetchWithRetry(ctx, p.ImageRef, path); err != nil {
		return nil, e.Wrap(op, err)
	}

	img, err := u.Fetcher.DecodeFile(path)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	vec, err := u.Encoder.EncodeOne(ctx, img)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	entry := domain.IndexEntry{ID: id, Vector: vec}
	if err := u.Index.Update(ctx, entry); err != nil {
		return nil, e.Wrap(op, err)
	}

	if u.Mirror != nil {
		if err := u.Mirror.Upsert(ctx, points([]domain.IndexEntry{entry}, map[int64]string{id: p.ImageRef})); err != nil {
			u.logger.Warnf("failed to sync vector mirror for product %d: %v", id, err)
		}
	}

	run := domain.IndexRun{
		ID:        uuid.NewString(),
		Operation: domain.OperationUpdate,
		Device:    u.Encoder.Device(),
		Indexed:   1,
		IndexSize: u.Index.Len(),
		StartedAt: started,
	}

	var fp *domain.ProductFingerprint
	if u.Fingerprinter != nil {
		if h, err := u.Fingerprinter.FromImage(img); err == nil {
			fp = &domain.ProductFingerprint{ProductID: id, Fingerprint: h, ImageRef: p.ImageRef}
		}
	}

	snapshot := u.afterChange(ctx, &run, []int64{id}, func(ctx context.Context) error {
		if fp == nil {
			return nil
		}
		return u.Fingerprints.Upsert(ctx, *fp)
	})

	return &BuildRes{
		Operation: domain.OperationUpdate,
		Indexed:   1,
		IndexSize: run.IndexSize,
		Snapshot:  snapshot,
	}, nil
}

// RemoveProduct удаляет товар из индекса. Для отсутствующего id это no-op с предупреждением.
func (u *IndexUseCase) RemoveProduct(ctx context.Context, id int64) (*BuildRes, error) {
	const op = "IndexUseCase.RemoveProduct"

	unlock, err := u.Lock.Acquire(ctx, IndexJobKey)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer u.release(unlock)

	started := time.Now().UTC()

	removed, err := u.Index.Remove(ctx, id)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if !removed {
		return &BuildRes{Operation: domain.OperationRemove, NoOp: true, IndexSize: u.Index.Len()}, nil
	}

	if u.Mirror != nil {
		if err := u.Mirror.Delete(ctx, []int64{id}); err != nil {
			u.logger.Warnf("failed to delete product %d from vector mirror: %v", id, err)
		}
	}

	run := domain.IndexRun{
		ID:        uuid.NewString(),
		Operation: domain.OperationRemove,
		Device:    u.Encoder.Device(),
		IndexSize: u.Index.Len(),
		StartedAt: started,
	}

	snapshot := u.afterChange(ctx, &run, []int64{id}, func(ctx context.Context) error {
		return u.Fingerprints.Delete(ctx, id)
	})

	return &BuildRes{
		Operation: domain.OperationRemove,
		IndexSize: run.IndexSize,
		Snapshot:  snapshot,
	}, nil
}

// afterChange выполняет побочные действия после успешного изменения индекса:
// снапшот, журнал с отпечатками в одной транзакции, событие и сброс кэша.
// Ошибки логируются: индекс на диске уже изменён.
func (u *IndexUseCase) afterChange(ctx context.Context, run *domain.IndexRun, ids []int64, fingerprints func(ctx context.Context) error) string {
	const op = "IndexUseCase.afterChange"

	var snapshot string
	if u.Snapshots != nil {
		version, err := u.Snapshots.UploadSnapshot(ctx, u.opts.IndexPath, u.opts.IDsPath)
		if err != nil {
			u.logger.Warnf("failed to upload index snapshot: %v", e.Wrap(op, err))
		} else {
			snapshot = version
		}
	}

	run.FinishedAt = time.Now().UTC()
	if u.TxManager != nil {
		err := u.TxManager.WithinTx(ctx, func(ctx context.Context) error {
			if err := u.Runs.SaveRun(ctx, *run); err != nil {
				return err
			}
			return fingerprints(ctx)
		})
		if err != nil {
			u.logger.Errorf(e.Wrap(op, err), "failed to save index run journal")
		}
	}

	if u.Publisher != nil {
		event := domain.IndexEvent{
			ID:         uuid.NewString(),
			Operation:  run.Operation,
			ProductIDs: ids,
			IndexSize:  run.IndexSize,
			Snapshot:   snapshot,
			Origin:     u.opts.Origin,
			CreatedAt:  run.FinishedAt,
		}
		if err := u.Publisher.Publish(ctx, event); err != nil {
			u.logger.Warnf("failed to publish index event: %v", e.Wrap(op, err))
		}
	}

	u.Catalog.Invalidate(ctx, ids)

	return snapshot
}

func (u *IndexUseCase) release(unlock Unlock) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := unlock(ctx); err != nil {
		u.logger.Warnf("failed to release index job lock: %v", err)
	}
}

func points(entries []domain.IndexEntry, refs map[int64]string) []domain.QdrantPoint {
	res := make([]domain.QdrantPoint, 0, len(entries))
	for _, entry := range entries {
		res = append(res, *domain.NewQdrantPoint(entry, refs[entry.ID]))
	}

	return res
}
