package pgdb

import (
	"context"
	"errors"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// IndexRunRepo ведёт журнал операций над индексом.
type IndexRunRepo struct {
	pool *pgxpool.Pool
	conv converter.IndexRunConverter
}

func NewIndexRunRepo(pool *pgxpool.Pool, conv converter.IndexRunConverter) *IndexRunRepo {
	return &IndexRunRepo{pool: pool, conv: conv}
}

func (r *IndexRunRepo) SaveRun(ctx context.Context, run domain.IndexRun) error {
	query := `
		INSERT INTO image_index_runs
			(id, operation, device, indexed, skipped, failed, index_size, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	m := r.conv.ToModel(run)
	if _, err := conn(ctx, r.pool).Exec(ctx, query,
		m.ID, m.Operation, m.Device, m.Indexed, m.Skipped, m.Failed, m.IndexSize, m.StartedAt, m.FinishedAt,
	); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// LastRun возвращает последнюю запись журнала или nil, если журнал пуст.
func (r *IndexRunRepo) LastRun(ctx context.Context) (*domain.IndexRun, error) {
	query := `
		SELECT id, operation, device, indexed, skipped, failed, index_size, started_at, finished_at
		FROM image_index_runs
		ORDER BY finished_at DESC
		LIMIT 1
	`

	var m converter.IndexRunModel
	err := conn(ctx, r.pool).QueryRow(ctx, query).Scan(
		&m.ID, &m.Operation, &m.Device, &m.Indexed, &m.Skipped, &m.Failed, &m.IndexSize, &m.StartedAt, &m.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	run := r.conv.ToEntity(m)
	return &run, nil
}
