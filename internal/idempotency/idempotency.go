// Package idempotency maps client idempotency keys to transaction hashes so
// a retried request never submits a second transaction.
package idempotency

import (
	"context"
	"time"
)

// Store reserves keys while a request is in flight and remembers the
// resulting hash once it completes.
type Store interface {
	// Reserve claims key. It returns the stored hash when key already
	// completed, domain.ErrDuplicateRequest while another holder is in
	// flight, and "" with a nil error when the caller now owns key.
	Reserve(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Complete stores hash for a reserved key.
	Complete(ctx context.Context, key, hash string, ttl time.Duration) error

	// Release drops an in-flight reservation so the key can be retried.
	// Completed keys are left untouched.
	Release(ctx context.Context, key string) error
}
