package evm

import (
	"errors"
	"fmt"
	"strings"
)

// RPCError is a JSON-RPC 2.0 error object returned by the node.
type RPCError struct {
	Code    int
	Message string
	Data    string // hex revert data for execution errors, if any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// IsAlreadyKnown reports whether the node rejected a broadcast because it
// already holds the transaction or its nonce has been consumed.
func IsAlreadyKnown(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction") ||
		strings.Contains(msg, "nonce too low")
}

// IsRPCError reports whether err came back as a JSON-RPC error object.
// Transport failures are not RPC errors.
func IsRPCError(err error) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr)
}

// IsExecutionReverted reports whether the node rejected a call because the
// EVM reverted.
func IsExecutionReverted(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == 3 || strings.HasPrefix(strings.ToLower(rpcErr.Message), "execution reverted")
}
