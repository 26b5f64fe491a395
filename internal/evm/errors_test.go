package evm

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		known    bool
		reverted bool
		rpc      bool
	}{
		{"transport", errors.New("connection refused"), false, false, false},
		{"already known", &RPCError{Code: -32000, Message: "already known"}, true, false, true},
		{"nonce too low", &RPCError{Code: -32000, Message: "nonce too low: next nonce 5, tx nonce 4"}, true, false, true},
		{"revert code", &RPCError{Code: 3, Message: "execution reverted", Data: "0x08c379a0"}, false, true, true},
		{"revert message", &RPCError{Code: -32000, Message: "execution reverted: EXPIRED"}, false, true, true},
		{"wrapped", fmt.Errorf("send: %w", &RPCError{Code: -32000, Message: "insufficient funds"}), false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAlreadyKnown(tt.err); got != tt.known {
				t.Errorf("IsAlreadyKnown() = %v, want %v", got, tt.known)
			}
			if got := IsExecutionReverted(tt.err); got != tt.reverted {
				t.Errorf("IsExecutionReverted() = %v, want %v", got, tt.reverted)
			}
			if got := IsRPCError(tt.err); got != tt.rpc {
				t.Errorf("IsRPCError() = %v, want %v", got, tt.rpc)
			}
		})
	}
}
