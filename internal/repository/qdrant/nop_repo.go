package qdrant

import (
	"context"

	"github.com/DRSN-tech/image-search/internal/domain"
)

// NopMirror используется, когда Qdrant не настроен.
type NopMirror struct{}

func (NopMirror) Reset(context.Context) error                        { return nil }
func (NopMirror) Upsert(context.Context, []domain.QdrantPoint) error { return nil }
func (NopMirror) Delete(context.Context, []int64) error              { return nil }
