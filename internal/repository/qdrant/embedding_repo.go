package qdrant

import (
	"context"

	"github.com/DRSN-tech/image-search/internal/cfg"
	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

const upsertChunk = 256

// EmbeddingRepo зеркалирует локальный индекс в коллекцию Qdrant.
// Идентификатор точки совпадает с идентификатором товара.
type EmbeddingRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewEmbeddingRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *EmbeddingRepo {
	return &EmbeddingRepo{
		client: client,
		cfg:    cfg,
	}
}

// Reset пересоздаёт коллекцию перед полной синхронизацией.
func (q *EmbeddingRepo) Reset(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.QdrantCollectionName)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.cfg.QdrantCollectionName); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.QdrantCollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Dot,
		}),
	}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Upsert сохраняет или обновляет векторы товаров порциями.
func (q *EmbeddingRepo) Upsert(ctx context.Context, points []domain.QdrantPoint) error {
	for start := 0; start < len(points); start += upsertChunk {
		end := min(start+upsertChunk, len(points))

		reqPoints := make([]*qdrant.PointStruct, 0, end-start)
		for _, point := range points[start:end] {
			reqPoints = append(reqPoints, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(point.ID),
				Vectors: qdrant.NewVectors(point.Vectors...),
				Payload: qdrant.NewValueMap(point.Payloads),
			})
		}

		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.cfg.QdrantCollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         reqPoints,
		}); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}

func (q *EmbeddingRepo) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDNum(uint64(id)))
	}

	if _, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	}); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
