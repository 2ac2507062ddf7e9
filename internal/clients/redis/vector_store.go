package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/services"
)

const vectorRefPrefix = "redis://vec/"

// vectorStore keeps embedding vectors as JSON values under vec:<id>. The
// relational store only ever sees the opaque ref string.
type vectorStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewVectorStore(log *logger.Logger, rdb *goredis.Client) services.VectorStore {
	return &vectorStore{
		log: log.With("service", "RedisVectorStore"),
		rdb: rdb,
	}
}

func (s *vectorStore) Upsert(ctx context.Context, id uuid.UUID, vector []float32) (string, error) {
	raw, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("marshal vector: %w", err)
	}
	key := fmt.Sprintf("vec:%s", id)
	if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return "", fmt.Errorf("store vector: %w", err)
	}
	return vectorRefPrefix + id.String(), nil
}

func (s *vectorStore) Delete(ctx context.Context, ref string) error {
	id, ok := strings.CutPrefix(ref, vectorRefPrefix)
	if !ok {
		return fmt.Errorf("unrecognized vector ref %q", ref)
	}
	if err := s.rdb.Del(ctx, fmt.Sprintf("vec:%s", id)).Err(); err != nil {
		return fmt.Errorf("delete vector: %w", err)
	}
	return nil
}
