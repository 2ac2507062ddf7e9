package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dataflux/dataflux-backend/internal/logger"
	"github.com/dataflux/dataflux-backend/internal/services"
	"github.com/dataflux/dataflux-backend/internal/utils"
)

// workQueue is a redis-list broker: LPUSH to publish, blocking LMOVE into a
// per-consumer pending list to receive, LREM on ack. A message that was
// received but never acked stays in the pending list; each delivery is also
// recorded in a claims ZSET scored by delivery time, and Reclaim moves
// entries older than the claim age back onto the topic, so a consumer crash
// cannot strand work. Delivery stays at-least-once. There is no priority
// ordering inside the list; priority only drives the ETA estimate and the
// analysis deadline.
type workQueue struct {
	log      *logger.Logger
	rdb      *goredis.Client
	topic    string
	pending  string
	claims   string
	claimAge time.Duration
}

func NewWorkQueue(log *logger.Logger, rdb *goredis.Client) services.WorkQueue {
	log = log.With("service", "RedisWorkQueue")
	topic := services.WorkTopic
	return &workQueue{
		log:      log,
		rdb:      rdb,
		topic:    fmt.Sprintf("queue:%s", topic),
		pending:  fmt.Sprintf("queue:%s:pending", topic),
		claims:   fmt.Sprintf("queue:%s:claims", topic),
		claimAge: utils.GetEnvAsDuration("WORK_RECLAIM_AGE", 5*time.Minute, log),
	}
}

func (q *workQueue) Publish(ctx context.Context, msg services.WorkMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal work message: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.topic, raw).Err(); err != nil {
		return fmt.Errorf("publish work message: %w", err)
	}
	return nil
}

func (q *workQueue) Receive(ctx context.Context) (*services.WorkDelivery, error) {
	for {
		// Bounded block so ctx cancellation is observed between polls.
		raw, err := q.rdb.BLMove(ctx, q.topic, q.pending, "RIGHT", "LEFT", 5*time.Second).Result()
		if errors.Is(err, goredis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("receive work message: %w", err)
		}

		if err := q.rdb.ZAdd(ctx, q.claims, goredis.Z{
			Score:  float64(time.Now().Unix()),
			Member: raw,
		}).Err(); err != nil {
			q.log.Warn("Claim record failed, delivery not reclaimable", "error", err)
		}

		var msg services.WorkMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			// Poison entry: drop it from pending and keep consuming.
			q.log.Warn("Dropping undecodable work message", "error", err)
			_ = q.rdb.LRem(ctx, q.pending, 1, raw).Err()
			_ = q.rdb.ZRem(ctx, q.claims, raw).Err()
			continue
		}

		payload := raw
		return &services.WorkDelivery{
			Message: msg,
			Ack: func(ackCtx context.Context) error {
				if err := q.rdb.LRem(ackCtx, q.pending, 1, payload).Err(); err != nil {
					return err
				}
				return q.rdb.ZRem(ackCtx, q.claims, payload).Err()
			},
		}, nil
	}
}

// Reclaim moves pending entries whose claim is older than the configured age
// back onto the topic. Entries claimed recently belong to a live consumer
// and are left alone.
func (q *workQueue) Reclaim(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-q.claimAge).Unix()
	stale, err := q.rdb.ZRangeByScore(ctx, q.claims, &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list stale claims: %w", err)
	}

	requeued := 0
	for _, raw := range stale {
		removed, err := q.rdb.LRem(ctx, q.pending, 1, raw).Result()
		if err != nil {
			return requeued, fmt.Errorf("remove stale pending entry: %w", err)
		}
		if removed > 0 {
			if err := q.rdb.LPush(ctx, q.topic, raw).Err(); err != nil {
				return requeued, fmt.Errorf("requeue stale entry: %w", err)
			}
			requeued++
		}
		if err := q.rdb.ZRem(ctx, q.claims, raw).Err(); err != nil {
			return requeued, fmt.Errorf("clear stale claim: %w", err)
		}
	}
	return requeued, nil
}
