package storage

import (
	"context"

	"pol-gateway/internal/domain"
)

// TransactionRecordStore provides access to transaction_records storage.
type TransactionRecordStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, r *domain.TransactionRecord) error

	// Update replaces the mutable fields of an existing record
	// (tx_hash, nonce, status, error, block_number, gas_used, updated_at).
	// Returns ErrNotFound if id does not exist.
	Update(ctx context.Context, r *domain.TransactionRecord) error

	// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error)

	// GetByTxHash retrieves a record by transaction hash. Returns ErrNotFound if not exists.
	GetByTxHash(ctx context.Context, txHash string) (*domain.TransactionRecord, error)

	// List retrieves up to limit records, newest first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*domain.TransactionRecord, error)
}

// PriceSampleStore provides access to price_samples storage.
type PriceSampleStore interface {
	// InsertBulk adds multiple samples. Fails entire batch on duplicate (symbol, timestamp_ms).
	InsertBulk(ctx context.Context, samples []*domain.PriceSample) error

	// GetRecent retrieves the latest limit samples for a symbol, ordered by timestamp ASC.
	GetRecent(ctx context.Context, symbol string, limit int) ([]*domain.PriceSample, error)
}
