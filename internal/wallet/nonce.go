package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"pol-gateway/internal/lock"
)

// NonceSource reports the node's view of the next nonce.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)
}

// NonceManager hands out nonces one holder at a time. A lease keeps the
// wallet lock from acquisition until the node accepts the transaction, so
// concurrent submissions get distinct, increasing nonces.
type NonceManager struct {
	source  NonceSource
	locker  lock.Locker
	address common.Address
	ttl     time.Duration

	mu     sync.Mutex
	next   uint64
	synced bool
}

// NewNonceManager creates a manager for address. ttl bounds how long a
// crashed holder can keep the lock when locker is distributed.
func NewNonceManager(source NonceSource, locker lock.Locker, address common.Address, ttl time.Duration) *NonceManager {
	return &NonceManager{source: source, locker: locker, address: address, ttl: ttl}
}

// Lease is a held nonce. Exactly one of Commit or Abort must be called.
type Lease struct {
	Nonce   uint64
	m       *NonceManager
	release lock.Release
	once    sync.Once
}

// Acquire blocks until the wallet lock is held and returns the next nonce:
// the larger of the locally committed counter and the node's pending count.
func (m *NonceManager) Acquire(ctx context.Context) (*Lease, error) {
	release, err := m.locker.Lock(ctx, "nonce:"+m.address.Hex(), m.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire wallet lock: %w", err)
	}

	pending, err := m.source.PendingNonceAt(ctx, m.address)
	if err != nil {
		release(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	m.mu.Lock()
	nonce := pending
	if m.synced && m.next > nonce {
		nonce = m.next
	}
	m.mu.Unlock()

	return &Lease{Nonce: nonce, m: m, release: release}, nil
}

// Commit records that the node accepted a transaction with this nonce and
// releases the wallet lock.
func (l *Lease) Commit(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		l.m.mu.Lock()
		l.m.next = l.Nonce + 1
		l.m.synced = true
		l.m.mu.Unlock()
		err = l.release(context.WithoutCancel(ctx))
	})
	return err
}

// Abort releases the lock without consuming the nonce. The next Acquire
// resyncs from the node.
func (l *Lease) Abort(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		l.m.mu.Lock()
		l.m.synced = false
		l.m.mu.Unlock()
		err = l.release(context.WithoutCancel(ctx))
	})
	return err
}
