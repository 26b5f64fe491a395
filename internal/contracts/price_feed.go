package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"pol-gateway/internal/evm"
)

// PriceFeed binds an aggregator exposing latestAnswer() int256.
type PriceFeed struct {
	contract
}

// NewPriceFeed binds the feed at address using feedABI.
func NewPriceFeed(client evm.RPCClient, address common.Address, feedABI abi.ABI) (*PriceFeed, error) {
	if err := requireMethods(feedABI, "latestAnswer"); err != nil {
		return nil, err
	}
	return &PriceFeed{contract{client: client, address: address, abi: feedABI}}, nil
}

// LatestAnswer returns the raw fixed-point answer.
func (f *PriceFeed) LatestAnswer(ctx context.Context) (*big.Int, error) {
	values, err := f.call(ctx, "latestAnswer")
	if err != nil {
		return nil, err
	}
	return bigResult("latestAnswer", values[0])
}
