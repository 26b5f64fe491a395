// Package evm is the gateway's view of an EVM JSON-RPC node.
package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RPCClient defines the EVM JSON-RPC methods the gateway uses.
type RPCClient interface {
	// ChainID returns eth_chainId.
	ChainID(ctx context.Context) (*big.Int, error)

	// BlockNumber returns the latest block height.
	BlockNumber(ctx context.Context) (uint64, error)

	// BalanceAt returns the native balance of addr at the latest block.
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)

	// PendingNonceAt returns eth_getTransactionCount(addr, "pending").
	PendingNonceAt(ctx context.Context, addr common.Address) (uint64, error)

	// GasPrice returns eth_gasPrice.
	GasPrice(ctx context.Context) (*big.Int, error)

	// EstimateGas returns eth_estimateGas for msg.
	EstimateGas(ctx context.Context, msg CallMsg) (uint64, error)

	// Call executes eth_call at block (nil means latest).
	Call(ctx context.Context, msg CallMsg, block *big.Int) ([]byte, error)

	// SendRawTransaction broadcasts a signed transaction.
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)

	// TransactionReceipt returns the receipt, or nil if not yet mined.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// CallMsg is a read-only or to-be-sent contract invocation.
type CallMsg struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Data  []byte
	Gas   uint64
}

// Receipt is the subset of a transaction receipt the pipeline needs.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64 // 1 success, 0 revert
	BlockNumber uint64
	GasUsed     uint64
}

// Receipt statuses.
const (
	ReceiptStatusFailed     uint64 = 0
	ReceiptStatusSuccessful uint64 = 1
)
