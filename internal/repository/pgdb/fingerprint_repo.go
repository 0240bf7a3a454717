package pgdb

import (
	"context"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// FingerprintRepo хранит перцептивные хэши изображений товаров.
type FingerprintRepo struct {
	pool *pgxpool.Pool
	conv converter.FingerprintConverter
}

func NewFingerprintRepo(pool *pgxpool.Pool, conv converter.FingerprintConverter) *FingerprintRepo {
	return &FingerprintRepo{pool: pool, conv: conv}
}

// ReplaceAll заменяет все отпечатки набором fps. Предполагает транзакцию в контексте.
func (f *FingerprintRepo) ReplaceAll(ctx context.Context, fps []domain.ProductFingerprint) error {
	q := conn(ctx, f.pool)

	if _, err := q.Exec(ctx, `DELETE FROM product_image_fingerprints`); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if len(fps) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(fps))
	for _, fp := range fps {
		m := f.conv.ToModel(fp)
		rows = append(rows, []any{m.ProductID, m.Fingerprint, m.ImageRef})
	}

	if _, err := q.CopyFrom(
		ctx,
		pgx.Identifier{"product_image_fingerprints"},
		[]string{"product_id", "fingerprint", "image_ref"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Upsert сохраняет отпечаток одного товара.
func (f *FingerprintRepo) Upsert(ctx context.Context, fp domain.ProductFingerprint) error {
	query := `
		INSERT INTO product_image_fingerprints (product_id, fingerprint, image_ref)
		VALUES ($1, $2, $3)
		ON CONFLICT (product_id)
		DO UPDATE SET
			fingerprint = EXCLUDED.fingerprint,
			image_ref = EXCLUDED.image_ref,
			updated_at = NOW()
	`

	m := f.conv.ToModel(fp)
	if _, err := conn(ctx, f.pool).Exec(ctx, query, m.ProductID, m.Fingerprint, m.ImageRef); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (f *FingerprintRepo) Delete(ctx context.Context, productID int64) error {
	if _, err := conn(ctx, f.pool).Exec(ctx, `DELETE FROM product_image_fingerprints WHERE product_id = $1`, productID); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// All возвращает все отпечатки по возрастанию product_id.
func (f *FingerprintRepo) All(ctx context.Context) ([]domain.ProductFingerprint, error) {
	rows, err := conn(ctx, f.pool).Query(ctx, `
		SELECT product_id, fingerprint, image_ref, updated_at
		FROM product_image_fingerprints
		ORDER BY product_id
	`)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer rows.Close()

	result := make([]domain.ProductFingerprint, 0)
	for rows.Next() {
		var m converter.FingerprintModel
		if err := rows.Scan(&m.ProductID, &m.Fingerprint, &m.ImageRef, &m.UpdatedAt); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
		result = append(result, f.conv.ToEntity(m))
	}
	if err := rows.Err(); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return result, nil
}
