package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/projectpolygon/hypercube-go/internal/logger"
)

const channel = "hypercube:events"

// RedisPublisher mirrors job-progress events onto a Redis pub/sub channel
// so an external dashboard process can observe them without talking to the
// coordinator's in-memory state directly. Config-gated and disabled by
// default (events.backend defaults to "memory"); never read from to
// answer any protocol endpoint.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an already-constructed Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish publishes e to the events channel, logging (not failing) on
// error since this path is purely observational.
func (r *RedisPublisher) Publish(ctx context.Context, e Event) {
	data, err := e.ToJSON()
	if err != nil {
		logger.Error().Err(err).Msg("events: failed to serialize event")
		return
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		logger.Warn().Err(err).Msg("events: failed to publish to redis")
	}
}

// Close closes the underlying Redis client.
func (r *RedisPublisher) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("events: close redis client: %w", err)
	}
	return nil
}
