package idempotency

import (
	"context"
	"sync"
	"time"

	"pol-gateway/internal/domain"
)

type memoryEntry struct {
	hash    string // empty while in flight
	expires time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Reserve(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.hash == "" {
			return "", domain.ErrDuplicateRequest
		}
		return e.hash, nil
	}
	m.entries[key] = memoryEntry{expires: now.Add(ttl)}
	return "", nil
}

func (m *Memory) Complete(_ context.Context, key, hash string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{hash: hash, expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.hash == "" {
		delete(m.entries, key)
	}
	return nil
}
