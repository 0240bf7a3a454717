package usecase

import (
	"image"
	"io"

	"github.com/DRSN-tech/image-search/internal/domain"
)

// SEARCH USECASE

// SearchReq — запрос поиска похожих товаров по изображению.
type SearchReq struct {
	Image     io.Reader // nil, если в запросе нет изображения
	Filename  string
	TopK      *int
	Threshold *float32
}

// ProductHit — товар из результатов поиска.
type ProductHit struct {
	domain.ProductRecord
	Similarity float32 `json:"similarity"`
	Rank       int     `json:"rank"`
}

// DebugInfo возвращается, когда индекс нашёл товары, но ни один не прошёл гидратацию.
type DebugInfo struct {
	FoundIDs  []int64 `json:"found_ids"`
	Threshold float32 `json:"threshold"`
	TopK      int     `json:"top_k"`
	IndexSize int     `json:"index_size"`
}

type SearchRes struct {
	Products  []ProductHit
	Message   string
	DebugInfo *DebugInfo
}

// INDEX USECASE

// FetchResult хранит исход загрузки одного изображения: либо Image, либо Err.
type FetchResult struct {
	Ref   string
	Image image.Image
	Err   error
}

type BuildReq struct {
	Force bool
}

// BuildRes описывает итог задачи индексации.
type BuildRes struct {
	Operation domain.IndexOperation
	Indexed   int
	Skipped   int
	Failed    int
	IndexSize int
	NoOp      bool
	Snapshot  string
}

// CONSISTENCY USECASE

type SyntheticSearch struct {
	Functional bool `json:"functional"`
	Hits       int  `json:"hits"`
	Resolvable int  `json:"resolvable"`
}

// DuplicateGroup — товары с почти одинаковыми изображениями.
type DuplicateGroup struct {
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	ProductIDs  []int64            `json:"product_ids"`
}

// ConsistencyReport — расхождения между каталогом и индексом.
type ConsistencyReport struct {
	IndexSize           int              `json:"index_size"`
	CatalogSize         int              `json:"catalog_size"`
	MissingFromDB       int              `json:"missing_from_db"`
	MissingFromDBIDs    []int64          `json:"missing_from_db_ids,omitempty"`
	MissingFromIndex    int              `json:"missing_from_index"`
	MissingFromIndexIDs []int64          `json:"missing_from_index_ids,omitempty"`
	MissingWithImage    int              `json:"missing_with_image"`
	WithoutImage        int              `json:"without_image"`
	Violations          []string         `json:"violations,omitempty"`
	Search              SyntheticSearch  `json:"search"`
	Duplicates          []DuplicateGroup `json:"duplicates,omitempty"`
	NeedsRepair         bool             `json:"needs_repair"`
	Repaired            bool             `json:"repaired"`
}

// DEDUP USECASE

type DuplicatesReq struct {
	QueryRef      string
	CandidateRefs []string
	Threshold     int
}

type DuplicatesRes struct {
	HasDuplicates   bool     `json:"has_dups"`
	MatchingIndices []int    `json:"matching_indices"`
	MatchingRefs    []string `json:"matching_refs"`
}

// MAPPERS

func NewProductHit(p domain.ProductRecord, hit domain.SearchHit) ProductHit {
	return ProductHit{
		ProductRecord: p,
		Similarity:    hit.Score,
		Rank:          hit.Rank,
	}
}

func NewFetchResult(ref string, img image.Image, err error) FetchResult {
	return FetchResult{Ref: ref, Image: img, Err: err}
}

// IndexStats — состояние индекса для эндпоинта статистики.
type IndexStats struct {
	Initialized bool          `json:"initialized"`
	Size        int           `json:"size"`
	Dim         int           `json:"dim"`
	Device      domain.Device `json:"device"`
	Violations  []string      `json:"violations,omitempty"`
}
