package domain

// QdrantPoint описывает запись зеркала индекса в Qdrant
type QdrantPoint struct {
	ID       uint64
	Vectors  []float32
	Payloads map[string]any
}

func NewQdrantPoint(entry IndexEntry, imageRef string) *QdrantPoint {
	return &QdrantPoint{
		ID:      uint64(entry.ID),
		Vectors: entry.Vector,
		Payloads: map[string]any{
			"product_id": entry.ID,
			"image_ref":  imageRef,
		},
	}
}
