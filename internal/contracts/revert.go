package contracts

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"pol-gateway/internal/evm"
)

// RevertReason extracts a human-readable reason from an eth_call error.
// It prefers the ABI-encoded Error(string) payload and falls back to the
// node's message. Returns "" when err carries no reason.
func RevertReason(err error) string {
	var rpcErr *evm.RPCError
	if !errors.As(err, &rpcErr) {
		return ""
	}
	if rpcErr.Data != "" {
		if data, decErr := hexutil.Decode(rpcErr.Data); decErr == nil {
			if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
				return reason
			}
		}
	}
	msg := strings.TrimPrefix(rpcErr.Message, "execution reverted: ")
	if msg == "execution reverted" {
		return ""
	}
	return msg
}
