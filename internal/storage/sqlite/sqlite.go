// Package sqlite stores transaction records in a single-file SQLite database
// for deployments without PostgreSQL.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps sql.DB opened with the pure-Go sqlite driver.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database file and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// readers (GET /transactions) must not block the pipeline's writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	// one writer connection; SQLITE_BUSY cannot occur between our own goroutines
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{DB: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transaction_records (
			id              TEXT PRIMARY KEY,
			kind            TEXT NOT NULL,
			idempotency_key TEXT NOT NULL DEFAULT '',
			tx_hash         TEXT NOT NULL DEFAULT '',
			nonce           INTEGER NOT NULL DEFAULT 0,
			status          TEXT NOT NULL,
			error           TEXT NOT NULL DEFAULT '',
			block_number    INTEGER NOT NULL DEFAULT 0,
			gas_used        INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_records_hash ON transaction_records(tx_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_records_created ON transaction_records(created_at)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func isDuplicateKeyError(err error) bool {
	var sqErr *sqlite.Error
	if !errors.As(err, &sqErr) {
		return false
	}
	switch sqErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
