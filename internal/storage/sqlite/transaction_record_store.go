package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/storage"
)

// TransactionRecordStore implements storage.TransactionRecordStore on SQLite.
type TransactionRecordStore struct {
	db *DB
}

// NewTransactionRecordStore creates a new TransactionRecordStore.
func NewTransactionRecordStore(db *DB) *TransactionRecordStore {
	return &TransactionRecordStore{db: db}
}

var _ storage.TransactionRecordStore = (*TransactionRecordStore)(nil)

const selectTransactionRecord = `
	SELECT id, kind, idempotency_key, tx_hash, nonce, status, error,
	       block_number, gas_used, created_at, updated_at
	FROM transaction_records
`

// Insert adds a new record. Returns ErrDuplicateKey if id exists.
func (s *TransactionRecordStore) Insert(ctx context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transaction_records (
			id, kind, idempotency_key, tx_hash, nonce, status, error,
			block_number, gas_used, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.IdempotencyKey, r.TxHash, int64(r.Nonce), string(r.Status), r.Error,
		int64(r.BlockNumber), int64(r.GasUsed), r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transaction record: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an existing record.
func (s *TransactionRecordStore) Update(ctx context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_records
		SET tx_hash = ?, nonce = ?, status = ?, error = ?,
		    block_number = ?, gas_used = ?, updated_at = ?
		WHERE id = ?`,
		r.TxHash, int64(r.Nonce), string(r.Status), r.Error,
		int64(r.BlockNumber), int64(r.GasUsed), r.UpdatedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a record by its ID.
func (s *TransactionRecordStore) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, selectTransactionRecord+` WHERE id = ?`, id)
	return scanRecord(row)
}

// GetByTxHash retrieves a record by transaction hash.
func (s *TransactionRecordStore) GetByTxHash(ctx context.Context, txHash string) (*domain.TransactionRecord, error) {
	if txHash == "" {
		return nil, storage.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, selectTransactionRecord+` WHERE tx_hash = ? LIMIT 1`, txHash)
	return scanRecord(row)
}

// List retrieves up to limit records, newest first.
func (s *TransactionRecordStore) List(ctx context.Context, limit int) ([]*domain.TransactionRecord, error) {
	query := selectTransactionRecord + ` ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transaction records: %w", err)
	}
	defer rows.Close()

	var out []*domain.TransactionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction records: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.TransactionRecord, error) {
	var (
		r                           domain.TransactionRecord
		kind, status                string
		nonce, blockNumber, gasUsed int64
	)
	err := row.Scan(
		&r.ID, &kind, &r.IdempotencyKey, &r.TxHash, &nonce, &status, &r.Error,
		&blockNumber, &gasUsed, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan transaction record: %w", err)
	}
	r.Kind = domain.OperationKind(kind)
	r.Status = domain.TxStatus(status)
	r.Nonce = uint64(nonce)
	r.BlockNumber = uint64(blockNumber)
	r.GasUsed = uint64(gasUsed)
	return &r, nil
}
