package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pol-gateway/internal/domain"
)

const pendingValue = "pending"

// releaseScript deletes the key only while it still holds the pending marker.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a Store shared by every gateway instance.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis creates a Redis store. Keys are stored as prefix+key.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Reserve(ctx context.Context, key string, ttl time.Duration) (string, error) {
	k := r.prefix + key
	ok, err := r.client.SetNX(ctx, k, pendingValue, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis setnx %s: %w", k, err)
	}
	if ok {
		return "", nil
	}

	v, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return r.Reserve(ctx, key, ttl)
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", k, err)
	}
	if v == pendingValue {
		return "", domain.ErrDuplicateRequest
	}
	return v, nil
}

func (r *Redis) Complete(ctx context.Context, key, hash string, ttl time.Duration) error {
	k := r.prefix + key
	if err := r.client.Set(ctx, k, hash, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

func (r *Redis) Release(ctx context.Context, key string) error {
	k := r.prefix + key
	if err := releaseScript.Run(ctx, r.client, []string{k}, pendingValue).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", k, err)
	}
	return nil
}
