package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "subsync:webhook:"

// RedisConfig holds Redis deduper configuration.
type RedisConfig struct {
	// KeyPrefix is prepended to all Redis keys (default: "subsync:webhook:")
	KeyPrefix string

	// TTL bounds how long processed event ids are remembered (default: DefaultTTL).
	TTL time.Duration
}

// Redis is a deduper shared across instances, backed by SETNX with a TTL.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis-backed deduper.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func NewRedis(client redis.UniversalClient, config RedisConfig) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaultKeyPrefix
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	return &Redis{
		client: client,
		prefix: config.KeyPrefix,
		ttl:    config.TTL,
	}, nil
}

// Do implements billing.Deduper. When Redis is unreachable the event is
// processed anyway: reprocessing is safe for an idempotent handler,
// dropping an event is not.
func (r *Redis) Do(ctx context.Context, eventID string, fn func() error) (bool, error) {
	key := r.prefix + eventID

	claimed, err := r.client.SetNX(ctx, key, "1", r.ttl).Result()
	if err == nil && !claimed {
		return true, nil
	}

	if runErr := fn(); runErr != nil {
		if err == nil {
			// Release the claim so the provider's retry is processed.
			r.client.Del(context.WithoutCancel(ctx), key)
		}
		return false, runErr
	}
	return false, nil
}
