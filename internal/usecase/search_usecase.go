package usecase

import (
	"context"
	"errors"
	"io"
	"math"
	"os"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

const (
	DefaultTopK      = 10
	DefaultThreshold = float32(0.2)
	MaxTopK          = 100

	msgNoMatches       = "no similar products found"
	msgNothingHydrated = "similar products were found in the index but none of them is available in the catalog"
)

// SearchOptions — параметры поиска по умолчанию и ограничения загрузки.
type SearchOptions struct {
	TopK           int
	Threshold      float32
	MaxUploadBytes int64
	TmpDir         string
}

// SearchUseCase отвечает на запросы «найти похожие товары по изображению».
type SearchUseCase struct {
	catalog *CatalogAdapter
	index   VectorIndex
	encoder Encoder
	fetcher ImageFetcher
	opts    SearchOptions
	logger  logger.Logger
}

func NewSearchUC(
	catalog *CatalogAdapter,
	index VectorIndex,
	encoder Encoder,
	fetcher ImageFetcher,
	opts SearchOptions,
	logger logger.Logger,
) *SearchUseCase {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}

	return &SearchUseCase{
		catalog: catalog,
		index:   index,
		encoder: encoder,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
	}
}

// Search сохраняет загрузку во временный файл, кодирует её и гидратирует найденные товары.
// Временный файл удаляется на любом пути выхода.
func (s *SearchUseCase) Search(ctx context.Context, req *SearchReq) (*SearchRes, error) {
	const op = "SearchUseCase.Search"

	k, threshold, err := s.params(req)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if req.Image == nil {
		return nil, e.Wrap(op, e.ErrNoImage)
	}

	path, err := s.saveUpload(req.Image)
	if path != "" {
		defer func() {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				s.logger.Warnf("failed to remove temp upload %s: %v", path, rmErr)
			}
		}()
	}
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Готовность энкодера и индекса
	if err := s.encoder.EnsureReady(ctx); err != nil {
		return nil, e.Wrap(op, err)
	}
	if !s.index.Initialized() || s.index.Len() == 0 {
		return nil, e.Wrap(op, e.ErrIndexNotInitialized)
	}

	img, err := s.fetcher.DecodeFile(path)
	if err != nil {
		s.logger.Debugf("cannot decode upload %q: %v", req.Filename, err)
		return nil, e.Wrap(op, e.ErrInvalidImage)
	}

	vec, err := s.encoder.EncodeOne(ctx, img)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	hits, err := s.index.Search(ctx, vec, k, threshold)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if len(hits) == 0 {
		return &SearchRes{Products: []ProductHit{}, Message: msgNoMatches}, nil
	}

	return s.hydrate(ctx, hits, k, threshold), nil
}

func (s *SearchUseCase) hydrate(ctx context.Context, hits []domain.SearchHit, k int, threshold float32) *SearchRes {
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ProductID
	}

	products := s.catalog.ByIDs(ctx, ids)
	byID := make(map[int64]domain.ProductRecord, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	res := &SearchRes{Products: make([]ProductHit, 0, len(products))}
	for _, h := range hits {
		if p, ok := byID[h.ProductID]; ok {
			res.Products = append(res.Products, NewProductHit(p, h))
		}
	}

	if len(res.Products) == 0 {
		s.logger.Warnf("search found %d products but none resolved in catalog: %v", len(ids), ids)
		res.Message = msgNothingHydrated
		res.DebugInfo = &DebugInfo{
			FoundIDs:  ids,
			Threshold: threshold,
			TopK:      k,
			IndexSize: s.index.Len(),
		}
	}

	return res
}

func (s *SearchUseCase) params(req *SearchReq) (int, float32, error) {
	k, threshold := s.opts.TopK, s.opts.Threshold

	if req.TopK != nil {
		if *req.TopK < 1 || *req.TopK > MaxTopK {
			return 0, 0, e.ErrInvalidSearchParams
		}
		k = *req.TopK
	}

	if req.Threshold != nil {
		t := *req.Threshold
		if math.IsNaN(float64(t)) || t < 0 || t > 1 {
			return 0, 0, e.ErrInvalidSearchParams
		}
		threshold = t
	}

	return k, threshold, nil
}

// saveUpload копирует загрузку во временный файл и закрывает его.
// Путь возвращается и при ошибке, если файл был создан.
func (s *SearchUseCase) saveUpload(r io.Reader) (string, error) {
	file, err := os.CreateTemp(s.opts.TmpDir, "search-*.jpg")
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}
	path := file.Name()

	var src io.Reader = r
	if s.opts.MaxUploadBytes > 0 {
		src = io.LimitReader(r, s.opts.MaxUploadBytes+1)
	}

	n, err := io.Copy(file, src)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return path, e.Wrap(whereami.WhereAmI(), err)
	}

	switch {
	case n == 0:
		return path, e.ErrEmptyUpload
	case s.opts.MaxUploadBytes > 0 && n > s.opts.MaxUploadBytes:
		return path, e.ErrFileTooLarge
	}

	return path, nil
}

// Stats возвращает состояние индекса и энкодера.
func (s *SearchUseCase) Stats(_ context.Context) IndexStats {
	health := s.index.Health()

	return IndexStats{
		Initialized: health.Initialized,
		Size:        health.NTotal,
		Dim:         health.Dim,
		Device:      s.encoder.Device(),
		Violations:  health.Violations,
	}
}
