// Package events publishes confirmed transactions to downstream consumers.
package events

import (
	"context"
	"sync"

	"pol-gateway/internal/domain"
)

// Publisher delivers transaction events.
type Publisher interface {
	Publish(ctx context.Context, ev domain.TransactionEvent) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, domain.TransactionEvent) error { return nil }
func (Noop) Close() error                                           { return nil }

// Memory keeps published events in order. Used by tests and local runs.
type Memory struct {
	mu     sync.Mutex
	events []domain.TransactionEvent
	Err    error // returned by Publish when set
}

func (m *Memory) Publish(_ context.Context, ev domain.TransactionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of the published events.
func (m *Memory) Events() []domain.TransactionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TransactionEvent, len(m.events))
	copy(out, m.events)
	return out
}
