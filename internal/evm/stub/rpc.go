// Package stub provides an in-memory evm.RPCClient for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"pol-gateway/internal/evm"
)

// ErrNoCallHandler is returned by Call when no handler is configured.
var ErrNoCallHandler = errors.New("stub: no call handler")

// RPCClient is a single-node chain that mines every accepted transaction
// into its own block. All fields may be set before use; methods are
// safe for concurrent callers.
type RPCClient struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Head         uint64
	Balances     map[common.Address]*big.Int
	Nonces       map[common.Address]uint64 // pending nonce per sender
	GasPriceWei  *big.Int
	GasEstimate  uint64

	// CallFn answers eth_call. block is nil for latest.
	CallFn func(msg evm.CallMsg, block *big.Int) ([]byte, error)

	// EstimateFn overrides GasEstimate when set.
	EstimateFn func(msg evm.CallMsg) (uint64, error)

	// SendFn may reject a broadcast; attempt counts calls for the same hash from 1.
	// It runs under the stub's lock and must not call back into the stub.
	SendFn func(tx *types.Transaction, attempt int) error

	// ReceiptFn decides the receipt of an accepted tx. Returning nil keeps it pending.
	// Defaults to a successful receipt.
	ReceiptFn func(tx *types.Transaction) *evm.Receipt

	sent     []*types.Transaction
	attempts map[common.Hash]int
	receipts map[common.Hash]*evm.Receipt
	calls    map[string]int
}

var _ evm.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a stub chain with chain id 137.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		ChainIDValue: big.NewInt(137),
		Head:         1000,
		Balances:     make(map[common.Address]*big.Int),
		Nonces:       make(map[common.Address]uint64),
		GasPriceWei:  big.NewInt(30_000_000_000),
		GasEstimate:  21_000,
		attempts:     make(map[common.Hash]int),
		receipts:     make(map[common.Hash]*evm.Receipt),
		calls:        make(map[string]int),
	}
}

func (c *RPCClient) count(method string) {
	c.calls[method]++
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// TotalCalls returns the number of RPC invocations of any method.
func (c *RPCClient) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// Sent returns the accepted transactions in broadcast order.
func (c *RPCClient) Sent() []*types.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.Transaction, len(c.sent))
	copy(out, c.sent)
	return out
}

// SetReceipt records or replaces the receipt for hash.
func (c *RPCClient) SetReceipt(r *evm.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[r.TxHash] = r
}

func (c *RPCClient) ChainID(_ context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("eth_chainId")
	return new(big.Int).Set(c.ChainIDValue), nil
}

func (c *RPCClient) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("eth_blockNumber")
	return c.Head, nil
}

func (c *RPCClient) BalanceAt(_ context.Context, addr common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("eth_getBalance")
	if b, ok := c.Balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (c *RPCClient) PendingNonceAt(_ context.Context, addr common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("eth_getTransactionCount")
	return c.Nonces[addr], nil
}

func (c *RPCClient) GasPrice(_ context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("eth_gasPrice")
	return new(big.Int).Set(c.GasPriceWei), nil
}

func (c *RPCClient) EstimateGas(_ context.Context, msg evm.CallMsg) (uint64, error) {
	c.mu.Lock()
	fn := c.EstimateFn
	c.count("eth_estimateGas")
	estimate := c.GasEstimate
	c.mu.Unlock()
	if fn != nil {
		return fn(msg)
	}
	return estimate, nil
}

func (c *RPCClient) Call(_ context.Context, msg evm.CallMsg, block *big.Int) ([]byte, error) {
	c.mu.Lock()
	fn := c.CallFn
	c.count("eth_call")
	c.mu.Unlock()
	if fn == nil {
		return nil, ErrNoCallHandler
	}
	return fn(msg, block)
}

// SendRawTransaction decodes raw, checks the sender's nonce and mines it.
func (c *RPCClient) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, &evm.RPCError{Code: -32000, Message: fmt.Sprintf("rlp: %v", err)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("eth_sendRawTransaction")

	hash := tx.Hash()
	c.attempts[hash]++
	if c.SendFn != nil {
		if err := c.SendFn(tx, c.attempts[hash]); err != nil {
			return common.Hash{}, err
		}
	}

	if _, known := c.receipts[hash]; known || c.isSent(hash) {
		return common.Hash{}, &evm.RPCError{Code: -32000, Message: "already known"}
	}

	signer := types.LatestSignerForChainID(c.ChainIDValue)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return common.Hash{}, &evm.RPCError{Code: -32000, Message: fmt.Sprintf("invalid sender: %v", err)}
	}
	if tx.Nonce() < c.Nonces[from] {
		return common.Hash{}, &evm.RPCError{Code: -32000, Message: "nonce too low"}
	}
	if tx.Nonce() > c.Nonces[from] {
		return common.Hash{}, &evm.RPCError{Code: -32000, Message: "nonce too high"}
	}
	c.Nonces[from] = tx.Nonce() + 1
	c.sent = append(c.sent, tx)

	receipt := &evm.Receipt{
		TxHash:      hash,
		Status:      evm.ReceiptStatusSuccessful,
		BlockNumber: c.Head + 1,
		GasUsed:     tx.Gas(),
	}
	if c.ReceiptFn != nil {
		receipt = c.ReceiptFn(tx)
	}
	if receipt != nil {
		receipt.TxHash = hash
		c.Head = receipt.BlockNumber
		c.receipts[hash] = receipt
	}
	return hash, nil
}

func (c *RPCClient) isSent(hash common.Hash) bool {
	for _, tx := range c.sent {
		if tx.Hash() == hash {
			return true
		}
	}
	return false
}

func (c *RPCClient) TransactionReceipt(_ context.Context, hash common.Hash) (*evm.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count("eth_getTransactionReceipt")
	r, ok := c.receipts[hash]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}
