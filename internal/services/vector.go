package services

import (
	"context"

	"github.com/google/uuid"
)

// VectorStore holds embedding vectors outside the relational store. The
// aggregator persists only the reference it returns.
type VectorStore interface {
	Upsert(ctx context.Context, id uuid.UUID, vector []float32) (ref string, err error)
	Delete(ctx context.Context, ref string) error
}
