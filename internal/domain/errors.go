package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the pipeline, oracle, activity log and HTTP layer.
var (
	// ErrValidation is returned for missing or malformed request fields.
	ErrValidation = errors.New("validation error")

	// ErrChain is returned when an RPC or contract call fails, including reverts.
	ErrChain = errors.New("chain error")

	// ErrOracle is returned when a price feed is unavailable or malformed.
	ErrOracle = errors.New("oracle error")

	// ErrLogIO is returned when the activity log cannot be read or written.
	ErrLogIO = errors.New("activity log io error")

	// ErrLogParse is returned when an activity log row is malformed.
	ErrLogParse = errors.New("activity log parse error")

	// ErrTimeout is returned when a receipt is not observed within the bound.
	ErrTimeout = errors.New("confirmation timeout")

	// ErrDuplicateRequest is returned when a request with the same
	// idempotency key is already in flight.
	ErrDuplicateRequest = errors.New("duplicate request in flight")
)

// RevertError reports a mined transaction with failed status.
type RevertError struct {
	TxHash string
	Reason string // empty when the node did not return one
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.TxHash)
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.TxHash, e.Reason)
}

// Is makes RevertError match ErrChain.
func (e *RevertError) Is(target error) bool {
	return target == ErrChain
}
