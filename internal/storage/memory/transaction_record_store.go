package memory

import (
	"context"
	"sort"
	"sync"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/storage"
)

// TransactionRecordStore is an in-memory implementation of storage.TransactionRecordStore.
type TransactionRecordStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.TransactionRecord // keyed by id
	byHash map[string]string                    // tx_hash -> id
}

// NewTransactionRecordStore creates a new in-memory transaction record store.
func NewTransactionRecordStore() *TransactionRecordStore {
	return &TransactionRecordStore{
		data:   make(map[string]*domain.TransactionRecord),
		byHash: make(map[string]string),
	}
}

// Insert adds a new record. Returns ErrDuplicateKey if id exists.
func (s *TransactionRecordStore) Insert(_ context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	recordCopy := *r
	s.data[r.ID] = &recordCopy
	if r.TxHash != "" {
		s.byHash[r.TxHash] = r.ID
	}
	return nil
}

// Update replaces the mutable fields of an existing record.
func (s *TransactionRecordStore) Update(_ context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[r.ID]
	if !exists {
		return storage.ErrNotFound
	}

	existing.TxHash = r.TxHash
	existing.Nonce = r.Nonce
	existing.Status = r.Status
	existing.Error = r.Error
	existing.BlockNumber = r.BlockNumber
	existing.GasUsed = r.GasUsed
	existing.UpdatedAt = r.UpdatedAt
	if r.TxHash != "" {
		s.byHash[r.TxHash] = r.ID
	}
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *TransactionRecordStore) GetByID(_ context.Context, id string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *r
	return &recordCopy, nil
}

// GetByTxHash retrieves a record by transaction hash. Returns ErrNotFound if not exists.
func (s *TransactionRecordStore) GetByTxHash(_ context.Context, txHash string) (*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.byHash[txHash]
	if !exists {
		return nil, storage.ErrNotFound
	}

	recordCopy := *s.data[id]
	return &recordCopy, nil
}

// List retrieves up to limit records, newest first.
func (s *TransactionRecordStore) List(_ context.Context, limit int) ([]*domain.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TransactionRecord, 0, len(s.data))
	for _, r := range s.data {
		recordCopy := *r
		result = append(result, &recordCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt > result[j].CreatedAt
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.TransactionRecordStore = (*TransactionRecordStore)(nil)
