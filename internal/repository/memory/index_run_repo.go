package memory

import (
	"context"
	"sync"

	"github.com/DRSN-tech/image-search/internal/domain"
)

type IndexRunRepo struct {
	mu   sync.Mutex
	runs []domain.IndexRun
}

func NewIndexRunRepo() *IndexRunRepo {
	return &IndexRunRepo{}
}

func (r *IndexRunRepo) SaveRun(_ context.Context, run domain.IndexRun) error {
	r.mu.Lock()
	r.runs = append(r.runs, run)
	r.mu.Unlock()

	return nil
}

func (r *IndexRunRepo) LastRun(_ context.Context) (*domain.IndexRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.runs) == 0 {
		return nil, nil
	}
	run := r.runs[len(r.runs)-1]

	return &run, nil
}

// Runs возвращает копию журнала.
func (r *IndexRunRepo) Runs() []domain.IndexRun {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]domain.IndexRun(nil), r.runs...)
}
