package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"narration-service/internal/logger"
)

// RedisPublisher is the part of *redis.Client the forwarder needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisForwarder mirrors every bus event as JSON onto a Redis channel, so
// SSE gateways and log shippers in other processes can follow the pipeline.
type RedisForwarder struct {
	rdb     RedisPublisher
	channel string
	log     *logger.Logger
}

func NewRedisForwarder(rdb RedisPublisher, channel string, log *logger.Logger) *RedisForwarder {
	if channel == "" {
		channel = "narration:events"
	}
	return &RedisForwarder{rdb: rdb, channel: channel, log: log.With("component", "redis_forwarder")}
}

// Attach subscribes the forwarder to all events; the returned func detaches it.
func (f *RedisForwarder) Attach(b *Bus) func() {
	return b.SubscribeAll("redis_forwarder", f.Forward)
}

func (f *RedisForwarder) Forward(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Kind(), err)
	}
	if err := f.rdb.Publish(ctx, f.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
