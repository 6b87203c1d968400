package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"narration-service/internal/entity"
)

// Queue hands content item ids to workers with at-least-once delivery.
type Queue interface {
	Enqueue(ctx context.Context, itemID string, priority int) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, itemID string) error
	RequeueStale(ctx context.Context, maxPerLane int64) (int64, error)
}

type Lane struct {
	QueueKey      string
	ProcessingKey string
}

// LanesFor derives the three priority lanes from base keys.
func LanesFor(queueKey, processingKey string) (low, normal, high Lane) {
	low = Lane{QueueKey: queueKey + ":low", ProcessingKey: processingKey + ":low"}
	normal = Lane{QueueKey: queueKey + ":normal", ProcessingKey: processingKey + ":normal"}
	high = Lane{QueueKey: queueKey + ":high", ProcessingKey: processingKey + ":high"}
	return low, normal, high
}

// redisPriorityQueue is a reliable queue over Redis lists.
// Claim: BRPOPLPUSH lane.queue -> lane.processing
// Ack:   LREM from the processing list recorded in processingMapKey
type redisPriorityQueue struct {
	rdb              redis.Cmdable
	processingMapKey string

	low    Lane
	normal Lane
	high   Lane
}

func NewRedisPriorityQueue(rdb redis.Cmdable, processingMapKey string, low, normal, high Lane) Queue {
	return &redisPriorityQueue{
		rdb:              rdb,
		processingMapKey: processingMapKey,
		low:              low,
		normal:           normal,
		high:             high,
	}
}

func clampPriority(p int) int {
	if p < entity.PriorityLow || p > entity.PriorityHigh {
		return entity.PriorityNormal
	}
	return p
}

func (q *redisPriorityQueue) laneByPriority(p int) Lane {
	switch clampPriority(p) {
	case entity.PriorityHigh:
		return q.high
	case entity.PriorityNormal:
		return q.normal
	default:
		return q.low
	}
}

func (q *redisPriorityQueue) lanes() []Lane {
	return []Lane{q.high, q.normal, q.low}
}

func (q *redisPriorityQueue) Enqueue(ctx context.Context, itemID string, priority int) error {
	return q.rdb.LPush(ctx, q.laneByPriority(priority).QueueKey, itemID).Err()
}

// ClaimBlocking polls high->normal->low in short blocking slots, so a busy
// low lane never starves the high one.
func (q *redisPriorityQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	forever := timeout <= 0
	deadline := time.Now().Add(timeout)

	slot := time.Second
	if !forever && timeout < slot {
		slot = timeout
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !forever && time.Now().After(deadline) {
			return "", redis.Nil
		}

		for _, ln := range q.lanes() {
			wait := slot
			if !forever {
				remain := time.Until(deadline)
				if remain <= 0 {
					return "", redis.Nil
				}
				if remain < wait {
					wait = remain
				}
			}

			id, err := q.rdb.BRPopLPush(ctx, ln.QueueKey, ln.ProcessingKey, wait).Result()
			if err == nil {
				// remember which processing list holds this id (for Ack)
				if hErr := q.rdb.HSet(ctx, q.processingMapKey, id, ln.ProcessingKey).Err(); hErr != nil {
					return "", hErr
				}
				return id, nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return "", err
		}
	}
}

func (q *redisPriorityQueue) Ack(ctx context.Context, itemID string) error {
	processingKey, err := q.rdb.HGet(ctx, q.processingMapKey, itemID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// mapping потерян, пробуем удалить из всех processing списков
			for _, ln := range q.lanes() {
				_ = q.rdb.LRem(ctx, ln.ProcessingKey, 1, itemID).Err()
			}
			return nil
		}
		return err
	}

	if err := q.rdb.LRem(ctx, processingKey, 1, itemID).Err(); err != nil {
		return err
	}
	return q.rdb.HDel(ctx, q.processingMapKey, itemID).Err()
}

// RequeueStale moves ids left in processing lists back to their queues.
// Items are idempotent per status, so a duplicate delivery is skipped by the worker.
func (q *redisPriorityQueue) RequeueStale(ctx context.Context, maxPerLane int64) (int64, error) {
	var moved int64

	for _, ln := range q.lanes() {
		for i := int64(0); i < maxPerLane; i++ {
			id, err := q.rdb.RPopLPush(ctx, ln.ProcessingKey, ln.QueueKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					break
				}
				return moved, err
			}
			if id != "" {
				moved++
				_ = q.rdb.HDel(ctx, q.processingMapKey, id).Err()
			}
		}
	}

	return moved, nil
}
