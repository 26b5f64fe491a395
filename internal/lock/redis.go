package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the key only if this holder's token is still stored.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a Locker backed by SET NX PX on a shared Redis.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retryWait time.Duration
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis locker. Keys are stored as prefix+key.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, retryWait: 50 * time.Millisecond}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Lock polls SET NX until it wins or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	lockKey := r.prefix + key
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}

	for {
		ok, err := r.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", lockKey, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryWait):
		}
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var relErr error
		once.Do(func() {
			n, err := unlockScript.Run(ctx, r.client, []string{lockKey}, token).Int64()
			if err != nil {
				relErr = fmt.Errorf("redis unlock %s: %w", lockKey, err)
				return
			}
			if n == 0 {
				relErr = fmt.Errorf("lock %s expired before release", lockKey)
			}
		})
		return relErr
	}, nil
}
