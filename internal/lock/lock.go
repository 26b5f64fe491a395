// Package lock serializes critical sections per key, in process or across
// replicas sharing a Redis instance.
package lock

import (
	"context"
	"time"
)

// Release frees a held lock. Calling it more than once is a no-op.
type Release func(ctx context.Context) error

// Locker acquires exclusive, keyed locks.
type Locker interface {
	// Lock blocks until key is held or ctx is done. ttl bounds how long a
	// crashed holder can keep the key; implementations without expiry ignore it.
	Lock(ctx context.Context, key string, ttl time.Duration) (Release, error)
}
