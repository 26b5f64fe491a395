package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/storage"
)

// TransactionRecordStore implements storage.TransactionRecordStore using PostgreSQL.
type TransactionRecordStore struct {
	pool *Pool
}

// NewTransactionRecordStore creates a new TransactionRecordStore.
func NewTransactionRecordStore(pool *Pool) *TransactionRecordStore {
	return &TransactionRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionRecordStore = (*TransactionRecordStore)(nil)

const transactionRecordColumns = `
	id, kind, idempotency_key, tx_hash, nonce, status, error,
	block_number, gas_used, created_at, updated_at
`

// Insert adds a new record. Returns ErrDuplicateKey if id exists.
func (s *TransactionRecordStore) Insert(ctx context.Context, r *domain.TransactionRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transaction_records (` + transactionRecordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.pool.Exec(ctx, query,
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

	query := `
		UPDATE transaction_records
		SET tx_hash = $2, nonce = $3, status = $4, error = $5,
		    block_number = $6, gas_used = $7, updated_at = $8
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		r.ID, r.TxHash, int64(r.Nonce), string(r.Status), r.Error,
		int64(r.BlockNumber), int64(r.GasUsed), r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update transaction record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a record by its ID. Returns ErrNotFound if not exists.
func (s *TransactionRecordStore) GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error) {
	query := `SELECT ` + transactionRecordColumns + ` FROM transaction_records WHERE id = $1`

	r, err := scanTransactionRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction record by id: %w", err)
	}
	return r, nil
}

// GetByTxHash retrieves a record by transaction hash. Returns ErrNotFound if not exists.
func (s *TransactionRecordStore) GetByTxHash(ctx context.Context, txHash string) (*domain.TransactionRecord, error) {
	query := `
		SELECT ` + transactionRecordColumns + `
		FROM transaction_records
		WHERE tx_hash = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	r, err := scanTransactionRecord(s.pool.QueryRow(ctx, query, txHash))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get transaction record by tx hash: %w", err)
	}
	return r, nil
}

// List retrieves up to limit records, newest first.
func (s *TransactionRecordStore) List(ctx context.Context, limit int) ([]*domain.TransactionRecord, error) {
	query := `
		SELECT ` + transactionRecordColumns + `
		FROM transaction_records
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list transaction records: %w", err)
	}
	defer rows.Close()

	var records []*domain.TransactionRecord
	for rows.Next() {
		r, err := scanTransactionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction record row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction record rows: %w", err)
	}
	return records, nil
}

// scanTransactionRecord scans a single row into a TransactionRecord.
func scanTransactionRecord(row pgx.Row) (*domain.TransactionRecord, error) {
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
		return nil, err
	}

	r.Kind = domain.OperationKind(kind)
	r.Status = domain.TxStatus(status)
	r.Nonce = uint64(nonce)
	r.BlockNumber = uint64(blockNumber)
	r.GasUsed = uint64(gasUsed)
	return &r, nil
}
