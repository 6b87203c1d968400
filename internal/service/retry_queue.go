package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RetryDescriptor is a delayed re-invocation of a failed entity.
type RetryDescriptor struct {
	EntityID     uuid.UUID `json:"entity_id"`
	Scope        Scope     `json:"scope"`
	RetryCount   int       `json:"retry_count"`
	ScheduledFor time.Time `json:"scheduled_for"`
	ErrorLogID   uuid.UUID `json:"error_log_id"`
}

type RetryQueue interface {
	Schedule(ctx context.Context, d RetryDescriptor) error
	// Due pops up to limit descriptors whose time has come.
	Due(ctx context.Context, now time.Time, limit int64) ([]RetryDescriptor, error)
}

// redisRetryQueue keeps descriptors in a sorted set scored by due time.
// A descriptor belongs to whoever removes it with ZREM, so several pollers
// can share the key.
type redisRetryQueue struct {
	rdb redis.Cmdable
	key string
}

func NewRedisRetryQueue(rdb redis.Cmdable, key string) RetryQueue {
	return &redisRetryQueue{rdb: rdb, key: key}
}

func (q *redisRetryQueue) Schedule(ctx context.Context, d RetryDescriptor) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(d.ScheduledFor.UnixMilli()),
		Member: string(raw),
	}).Err()
}

func (q *redisRetryQueue) Due(ctx context.Context, now time.Time, limit int64) ([]RetryDescriptor, error) {
	members, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]RetryDescriptor, 0, len(members))
	for _, m := range members {
		n, err := q.rdb.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return out, err
		}
		if n == 0 {
			continue // claimed by another poller
		}
		var d RetryDescriptor
		if err := json.Unmarshal([]byte(m), &d); err != nil {
			return out, fmt.Errorf("decode retry descriptor: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}
