package storage

import (
	"context"
	"errors"
	"time"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/observability"
)

// InstrumentedRecords records query latency and errors for a
// TransactionRecordStore under the given database label.
type InstrumentedRecords struct {
	next     TransactionRecordStore
	database string
}

var _ TransactionRecordStore = (*InstrumentedRecords)(nil)

// NewInstrumentedRecords wraps next.
func NewInstrumentedRecords(next TransactionRecordStore, database string) *InstrumentedRecords {
	return &InstrumentedRecords{next: next, database: database}
}

func (s *InstrumentedRecords) Insert(ctx context.Context, r *domain.TransactionRecord) error {
	start := time.Now()
	err := s.next.Insert(ctx, r)
	observe(s.database, "insert", start, err)
	return err
}

func (s *InstrumentedRecords) Update(ctx context.Context, r *domain.TransactionRecord) error {
	start := time.Now()
	err := s.next.Update(ctx, r)
	observe(s.database, "update", start, err)
	return err
}

func (s *InstrumentedRecords) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	start := time.Now()
	r, err := s.next.GetByID(ctx, id)
	observe(s.database, "get_by_id", start, err)
	return r, err
}

func (s *InstrumentedRecords) GetByTxHash(ctx context.Context, txHash string) (*domain.TransactionRecord, error) {
	start := time.Now()
	r, err := s.next.GetByTxHash(ctx, txHash)
	observe(s.database, "get_by_tx_hash", start, err)
	return r, err
}

func (s *InstrumentedRecords) List(ctx context.Context, limit int) ([]*domain.TransactionRecord, error) {
	start := time.Now()
	rs, err := s.next.List(ctx, limit)
	observe(s.database, "list", start, err)
	return rs, err
}

// InstrumentedPrices is InstrumentedRecords for a PriceSampleStore.
type InstrumentedPrices struct {
	next     PriceSampleStore
	database string
}

var _ PriceSampleStore = (*InstrumentedPrices)(nil)

// NewInstrumentedPrices wraps next.
func NewInstrumentedPrices(next PriceSampleStore, database string) *InstrumentedPrices {
	return &InstrumentedPrices{next: next, database: database}
}

func (s *InstrumentedPrices) InsertBulk(ctx context.Context, samples []*domain.PriceSample) error {
	start := time.Now()
	err := s.next.InsertBulk(ctx, samples)
	observe(s.database, "insert_bulk", start, err)
	return err
}

func (s *InstrumentedPrices) GetRecent(ctx context.Context, symbol string, limit int) ([]*domain.PriceSample, error) {
	start := time.Now()
	ps, err := s.next.GetRecent(ctx, symbol, limit)
	observe(s.database, "get_recent", start, err)
	return ps, err
}

// observe counts only backend failures; not-found and duplicate results are
// normal outcomes.
func observe(database, op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateKey) {
		err = nil
	}
	observability.RecordDBQuery(database, op, time.Since(start).Seconds(), err)
}
