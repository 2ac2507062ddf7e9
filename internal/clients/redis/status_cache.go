package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/services"
	"github.com/dataflux/dataflux-backend/internal/utils"
)

type statusCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewStatusCache returns the redis-backed status cache. Entries expire on
// their own; the tracker treats any miss as a read-through to the store.
func NewStatusCache(log *logger.Logger, rdb *goredis.Client) services.StatusCache {
	serviceLog := log.With("service", "RedisStatusCache")
	return &statusCache{
		log: serviceLog,
		rdb: rdb,
		ttl: utils.GetEnvAsDuration("STATUS_CACHE_TTL", time.Hour, serviceLog),
	}
}

func statusKey(assetID uuid.UUID) string {
	return fmt.Sprintf("asset:%s", assetID)
}

func (c *statusCache) Get(ctx context.Context, assetID uuid.UUID) (*services.CachedStatus, error) {
	raw, err := c.rdb.Get(ctx, statusKey(assetID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var status services.CachedStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		// A corrupt entry is treated as a miss after being dropped.
		c.log.Warn("Dropping unreadable cache entry", "asset_id", assetID, "error", err)
		_ = c.rdb.Del(ctx, statusKey(assetID)).Err()
		return nil, nil
	}
	return &status, nil
}

func (c *statusCache) Set(ctx context.Context, assetID uuid.UUID, status services.CachedStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, statusKey(assetID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *statusCache) Invalidate(ctx context.Context, assetID uuid.UUID) error {
	if err := c.rdb.Del(ctx, statusKey(assetID)).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}
