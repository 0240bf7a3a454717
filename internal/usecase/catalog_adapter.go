package usecase

import (
	"context"
	"iter"
	"time"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
)

// CatalogAdapter — единственная точка чтения каталога для поиска и индексатора.
// Ошибки источника при гидратации логируются и превращаются в пустой результат.
type CatalogAdapter struct {
	source ProductSource
	cache  ProductCache
	logger logger.Logger
}

// NewCatalogAdapter принимает nil вместо cache, если кэш не настроен.
func NewCatalogAdapter(source ProductSource, cache ProductCache, logger logger.Logger) *CatalogAdapter {
	return &CatalogAdapter{
		source: source,
		cache:  cache,
		logger: logger,
	}
}

// ByID возвращает активный товар или nil.
func (c *CatalogAdapter) ByID(ctx context.Context, id int64) *domain.ProductRecord {
	products := c.ByIDs(ctx, []int64{id})
	if len(products) == 0 {
		return nil
	}

	return &products[0]
}

// ByIDs возвращает активные товары в порядке ids, пропуская неразрешённые.
// Активность решает источник; кэш читается только если источник недоступен.
func (c *CatalogAdapter) ByIDs(ctx context.Context, ids []int64) []domain.ProductRecord {
	const op = "CatalogAdapter.ByIDs"

	if len(ids) == 0 {
		return []domain.ProductRecord{}
	}

	products, err := c.source.ProductsByIDs(ctx, ids)
	if err != nil {
		c.logger.Errorf(e.Wrap(op, err), "failed to load products from catalog")
		return c.fromCache(ctx, ids)
	}

	active := make(map[int64]domain.ProductRecord, len(products))
	for _, p := range products {
		if p.IsActive {
			active[p.ID] = p
		}
	}

	result := make([]domain.ProductRecord, 0, len(ids))
	fresh := make([]domain.ProductRecord, 0, len(active))
	var gone []int64
	for _, id := range ids {
		if p, ok := active[id]; ok {
			result = append(result, p)
			fresh = append(fresh, p)
		} else {
			gone = append(gone, id)
		}
	}

	c.refreshCache(fresh, gone)

	return result
}

// fromCache отдаёт активные закэшированные товары, пока источник недоступен.
func (c *CatalogAdapter) fromCache(ctx context.Context, ids []int64) []domain.ProductRecord {
	result := make([]domain.ProductRecord, 0, len(ids))
	if c.cache == nil {
		return result
	}

	cached, err := c.cache.GetProducts(ctx, ids)
	if err != nil {
		c.logger.Warnf("product cache unavailable: %v", e.Wrap("CatalogAdapter.fromCache", err))
		return result
	}

	for _, id := range ids {
		if p, ok := cached[id]; ok && p.IsActive {
			result = append(result, p)
		}
	}

	return result
}

// refreshCache в фоне пишет свежие карточки и удаляет те, что источник больше не отдаёт.
func (c *CatalogAdapter) refreshCache(fresh []domain.ProductRecord, gone []int64) {
	if c.cache == nil || (len(fresh) == 0 && len(gone) == 0) {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		if len(gone) > 0 {
			if err := c.cache.DeleteProducts(ctx, gone); err != nil {
				c.logger.Warnf("failed to drop stale cached products: %v", err)
			}
		}
		if len(fresh) > 0 {
			if err := c.cache.SetProducts(ctx, fresh); err != nil {
				c.logger.Warnf("failed to cache products in background: %v", err)
			}
		}
	}()
}

// ActiveProducts лениво перечисляет активные товары по возрастанию id.
func (c *CatalogAdapter) ActiveProducts(ctx context.Context) iter.Seq2[domain.ProductRecord, error] {
	return c.source.ActiveProducts(ctx)
}

// Invalidate удаляет карточки товаров из кэша.
func (c *CatalogAdapter) Invalidate(ctx context.Context, ids []int64) {
	if c.cache == nil || len(ids) == 0 {
		return
	}

	if err := c.cache.DeleteProducts(ctx, ids); err != nil {
		c.logger.Warnf("failed to invalidate cached products: %v", err)
	}
}
