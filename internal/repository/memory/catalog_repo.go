package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"iter"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

// CatalogRepo — каталог из JSON-файла (массив товаров) или заданный в памяти.
// Файл перечитывается, если изменилось время его модификации.
type CatalogRepo struct {
	path     string
	mediaURL string
	logger   logger.Logger

	mu       sync.Mutex
	modTime  time.Time
	products []domain.ProductRecord // активные, по возрастанию id
}

func NewCatalogRepo(path, mediaURL string, logger logger.Logger) *CatalogRepo {
	return &CatalogRepo{path: path, mediaURL: mediaURL, logger: logger}
}

// NewStaticCatalog создаёт каталог из готового набора товаров.
func NewStaticCatalog(raw []domain.RawProduct, mediaURL string, logger logger.Logger) *CatalogRepo {
	c := &CatalogRepo{mediaURL: mediaURL, logger: logger}
	c.products = c.normalize(raw)

	return c
}

func (c *CatalogRepo) ProductsByIDs(_ context.Context, ids []int64) ([]domain.ProductRecord, error) {
	products, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	result := make([]domain.ProductRecord, 0, len(ids))
	for _, id := range ids {
		i, ok := slices.BinarySearchFunc(products, id, func(p domain.ProductRecord, id int64) int {
			return cmp.Compare(p.ID, id)
		})
		if ok {
			result = append(result, products[i])
		}
	}

	return result, nil
}

func (c *CatalogRepo) ActiveProducts(ctx context.Context) iter.Seq2[domain.ProductRecord, error] {
	return func(yield func(domain.ProductRecord, error) bool) {
		products, err := c.snapshot()
		if err != nil {
			yield(domain.ProductRecord{}, err)
			return
		}

		for _, p := range products {
			if err := ctx.Err(); err != nil {
				yield(domain.ProductRecord{}, err)
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (c *CatalogRepo) snapshot() ([]domain.ProductRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return c.products, nil
	}

	st, err := os.Stat(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, e.Wrap(c.path, e.ErrCatalogUnavailable)
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if c.products != nil && st.ModTime().Equal(c.modTime) {
		return c.products, nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var raw []domain.RawProduct
	if err := dec.Decode(&raw); err != nil {
		return nil, e.Wrap(c.path, errors.Join(e.ErrCatalogUnavailable, err))
	}

	c.products = c.normalize(raw)
	c.modTime = st.ModTime()
	c.logger.Infof("loaded %d active products from %s", len(c.products), c.path)

	return c.products, nil
}

func (c *CatalogRepo) normalize(raw []domain.RawProduct) []domain.ProductRecord {
	products := make([]domain.ProductRecord, 0, len(raw))
	seen := make(map[int64]struct{}, len(raw))
	for _, r := range raw {
		p, ok := domain.NormalizeProduct(r, c.mediaURL)
		if !ok {
			c.logger.Warnf("skipping catalog entry with invalid id %v", r.ID)
			continue
		}
		if !p.IsActive {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			c.logger.Warnf("skipping duplicate catalog entry %d", p.ID)
			continue
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.ProductRecord) int { return cmp.Compare(a.ID, b.ID) })

	return products
}
