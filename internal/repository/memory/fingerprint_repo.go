package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/DRSN-tech/image-search/internal/domain"
)

// FingerprintRepo хранит отпечатки в памяти процесса.
type FingerprintRepo struct {
	mu  sync.RWMutex
	fps map[int64]domain.ProductFingerprint
}

func NewFingerprintRepo() *FingerprintRepo {
	return &FingerprintRepo{fps: make(map[int64]domain.ProductFingerprint)}
}

func (f *FingerprintRepo) ReplaceAll(_ context.Context, fps []domain.ProductFingerprint) error {
	next := make(map[int64]domain.ProductFingerprint, len(fps))
	for _, fp := range fps {
		next[fp.ProductID] = fp
	}

	f.mu.Lock()
	f.fps = next
	f.mu.Unlock()

	return nil
}

func (f *FingerprintRepo) Upsert(_ context.Context, fp domain.ProductFingerprint) error {
	f.mu.Lock()
	f.fps[fp.ProductID] = fp
	f.mu.Unlock()

	return nil
}

func (f *FingerprintRepo) Delete(_ context.Context, productID int64) error {
	f.mu.Lock()
	delete(f.fps, productID)
	f.mu.Unlock()

	return nil
}

func (f *FingerprintRepo) All(_ context.Context) ([]domain.ProductFingerprint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]domain.ProductFingerprint, 0, len(f.fps))
	for _, fp := range f.fps {
		out = append(out, fp)
	}
	slices.SortFunc(out, func(a, b domain.ProductFingerprint) int { return cmp.Compare(a.ProductID, b.ProductID) })

	return out, nil
}
