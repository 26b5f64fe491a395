package storage

import "errors"

// Sentinel errors returned by every backend.
var (
	// ErrNotFound is returned when no record or sample matches the lookup.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a transaction record id, or a
	// (symbol, timestamp_ms) price sample, already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned for nil records or empty ids.
	ErrInvalidInput = errors.New("invalid input")
)
