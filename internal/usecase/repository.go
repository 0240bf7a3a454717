package usecase

import (
	"context"
	"iter"

	"github.com/DRSN-tech/image-search/internal/domain"
)

// ProductSource — источник каталога. Возвращает только активные товары.
type ProductSource interface {
	ProductsByIDs(ctx context.Context, ids []int64) ([]domain.ProductRecord, error)
	// ActiveProducts лениво перечисляет активные товары по возрастанию id.
	ActiveProducts(ctx context.Context) iter.Seq2[domain.ProductRecord, error]
}

// ProductCache — кэш карточек товаров для гидратации результатов поиска.
type ProductCache interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]domain.ProductRecord, error)
	SetProducts(ctx context.Context, products []domain.ProductRecord) error
	DeleteProducts(ctx context.Context, ids []int64) error
}

// VectorIndex — локальный индекс векторов товаров.
type VectorIndex interface {
	Search(ctx context.Context, q domain.Vector, k int, threshold float32) ([]domain.SearchHit, error)
	AddBatch(ctx context.Context, entries []domain.IndexEntry) error
	Remove(ctx context.Context, id int64) (bool, error)
	Update(ctx context.Context, entry domain.IndexEntry) error
	Rebuild(ctx context.Context, entries []domain.IndexEntry) error
	Reload(ctx context.Context) error
	Reconstruct(id int64) (domain.Vector, bool)
	Contains(id int64) bool
	IDs() []int64
	Len() int
	Initialized() bool
	Health() domain.IndexHealth
}

// Unlock снимает блокировку задачи индексации.
type Unlock func(ctx context.Context) error

// JobLock гарантирует, что между процессами одновременно выполняется одна задача индексации.
type JobLock interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// VectorMirror — необязательное зеркало индекса во внешнем векторном хранилище.
type VectorMirror interface {
	Reset(ctx context.Context) error
	Upsert(ctx context.Context, points []domain.QdrantPoint) error
	Delete(ctx context.Context, ids []int64) error
}

// TxManager выполняет fn в транзакции каталога.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type IndexRunRepository interface {
	SaveRun(ctx context.Context, run domain.IndexRun) error
	LastRun(ctx context.Context) (*domain.IndexRun, error)
}

type FingerprintRepository interface {
	ReplaceAll(ctx context.Context, fps []domain.ProductFingerprint) error
	Upsert(ctx context.Context, fp domain.ProductFingerprint) error
	Delete(ctx context.Context, productID int64) error
	All(ctx context.Context) ([]domain.ProductFingerprint, error)
}
