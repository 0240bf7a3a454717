package pgdb

import (
	"context"
	"errors"
	"iter"
	"math"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/DRSN-tech/image-search/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

const productColumns = `
	pr.id, pr.name, pr.price::text, pr.is_active, pr.image_url, pr.image, pr.gallery,
	cat.id, cat.name, cat.slug, pr.extra
`

// ProductRepo реализует источник каталога поверх PostgreSQL.
type ProductRepo struct {
	pool     *pgxpool.Pool
	conv     converter.ProductConverter
	mediaURL string
	pageSize int
	logger   logger.Logger
}

func NewProductRepo(pool *pgxpool.Pool, conv converter.ProductConverter, mediaURL string, pageSize int, logger logger.Logger) *ProductRepo {
	if pageSize <= 0 {
		pageSize = 500
	}

	return &ProductRepo{
		pool:     pool,
		conv:     conv,
		mediaURL: mediaURL,
		pageSize: pageSize,
		logger:   logger,
	}
}

// ProductsByIDs возвращает активные товары с указанными идентификаторами.
func (p *ProductRepo) ProductsByIDs(ctx context.Context, ids []int64) ([]domain.ProductRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT` + productColumns + `
		FROM products pr
		LEFT JOIN categories cat ON pr.category_id = cat.id
		WHERE pr.id = ANY($1) AND pr.is_active
	`

	rows, err := p.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, p.wrap(err)
	}

	return p.collect(rows)
}

// ActiveProducts перечисляет активные товары по возрастанию id постранично (keyset).
func (p *ProductRepo) ActiveProducts(ctx context.Context) iter.Seq2[domain.ProductRecord, error] {
	query := `SELECT` + productColumns + `
		FROM products pr
		LEFT JOIN categories cat ON pr.category_id = cat.id
		WHERE pr.is_active AND pr.id > $1
		ORDER BY pr.id
		LIMIT $2
	`

	return func(yield func(domain.ProductRecord, error) bool) {
		var lastID int64 = math.MinInt64
		for {
			rows, err := p.pool.Query(ctx, query, lastID, p.pageSize)
			if err != nil {
				yield(domain.ProductRecord{}, p.wrap(err))
				return
			}

			page, err := p.collect(rows)
			if err != nil {
				yield(domain.ProductRecord{}, err)
				return
			}

			for _, product := range page {
				if !yield(product, nil) {
					return
				}
			}

			if len(page) < p.pageSize {
				return
			}
			lastID = page[len(page)-1].ID
		}
	}
}

func (p *ProductRepo) collect(rows pgx.Rows) ([]domain.ProductRecord, error) {
	defer rows.Close()

	result := make([]domain.ProductRecord, 0)
	for rows.Next() {
		var m converter.ProductModel
		if err := rows.Scan(
			&m.ID, &m.Name, &m.Price, &m.IsActive, &m.ImageURL, &m.Image, &m.Gallery,
			&m.CategoryID, &m.CategoryName, &m.CategorySlug, &m.Extra,
		); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}

		product, ok := domain.NormalizeProduct(p.conv.ToRaw(&m), p.mediaURL)
		if !ok {
			p.logger.Warnf("skipping product with invalid id %d", m.ID)
			continue
		}
		result = append(result, product)
	}
	if err := rows.Err(); err != nil {
		return nil, p.wrap(err)
	}

	return result, nil
}

// wrap превращает отсутствие схемы каталога в e.ErrCatalogUnavailable.
func (p *ProductRepo) wrap(err error) error {
	if postgres.IsSchemaMissing(err) {
		return e.Wrap(whereami.WhereAmI(), errors.Join(e.ErrCatalogUnavailable, err))
	}

	return e.Wrap(whereami.WhereAmI(), err)
}
