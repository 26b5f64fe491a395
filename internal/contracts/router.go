package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"pol-gateway/internal/evm"
)

// Router binds a UniswapV2-style router.
type Router struct {
	contract
}

// NewRouter binds the router at address using routerABI.
func NewRouter(client evm.RPCClient, address common.Address, routerABI abi.ABI) (*Router, error) {
	if err := requireMethods(routerABI, "getAmountsOut", "swapExactTokensForTokens", "addLiquidity"); err != nil {
		return nil, err
	}
	return &Router{contract{client: client, address: address, abi: routerABI}}, nil
}

// GetAmountsOut quotes amountIn along path. The last element is the output amount.
func (r *Router) GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	values, err := r.call(ctx, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut: unexpected result type %T", values[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("getAmountsOut: got %d amounts for path of %d", len(amounts), len(path))
	}
	return amounts, nil
}

// SwapExactTokensForTokens packs calldata for a swap of exactly amountIn.
func (r *Router) SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := r.abi.Pack("swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("pack swapExactTokensForTokens: %w", err)
	}
	return data, nil
}

// AddLiquidity packs calldata for adding liquidity to the tokenA/tokenB pool.
func (r *Router) AddLiquidity(tokenA, tokenB common.Address, amountA, amountB, minA, minB *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	data, err := r.abi.Pack("addLiquidity", tokenA, tokenB, amountA, amountB, minA, minB, to, deadline)
	if err != nil {
		return nil, fmt.Errorf("pack addLiquidity: %w", err)
	}
	return data, nil
}
