package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"pol-gateway/internal/domain"
)

// ComputeRequestID computes the transaction record ID for a request.
// With an idempotency key the ID is deterministic:
// SHA256(kind|wallet|idempotency_key), hex-encoded (64 characters).
// Without a key every call returns a fresh UUID.
func ComputeRequestID(kind domain.OperationKind, wallet, idempotencyKey string) string {
	if idempotencyKey == "" {
		return uuid.NewString()
	}

	data := fmt.Sprintf("%s|%s|%s", string(kind), wallet, idempotencyKey)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// IdempotencyStoreKey namespaces a client key by operation kind so the same
// key sent to /buy-pol and /sell-pol does not collide.
func IdempotencyStoreKey(kind domain.OperationKind, idempotencyKey string) string {
	return string(kind) + ":" + idempotencyKey
}
