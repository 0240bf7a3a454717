package usecase

import (
	"context"

	"github.com/DRSN-tech/image-search/internal/domain"
)

type SearchUC interface {
	Search(ctx context.Context, req *SearchReq) (*SearchRes, error)
	Stats(ctx context.Context) IndexStats
}

type IndexUC interface {
	Build(ctx context.Context, req BuildReq) (*BuildRes, error)
	Rebuild(ctx context.Context) (*BuildRes, error)
	UpdateProduct(ctx context.Context, id int64) (*BuildRes, error)
	RemoveProduct(ctx context.Context, id int64) (*BuildRes, error)
}

type ConsistencyUC interface {
	Check(ctx context.Context, fix bool) (*ConsistencyReport, error)
}

type DedupUC interface {
	Fingerprint(ctx context.Context, ref string) (domain.Fingerprint, error)
	FindDuplicates(ctx context.Context, req DuplicatesReq) (*DuplicatesRes, error)
}
