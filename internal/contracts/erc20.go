package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"pol-gateway/internal/evm"
)

// ERC20 binds the read side of an ERC-20 token.
type ERC20 struct {
	contract
}

// NewERC20 binds the token at address using tokenABI.
func NewERC20(client evm.RPCClient, address common.Address, tokenABI abi.ABI) (*ERC20, error) {
	if err := requireMethods(tokenABI, "balanceOf"); err != nil {
		return nil, err
	}
	return &ERC20{contract{client: client, address: address, abi: tokenABI}}, nil
}

// BalanceOf returns owner's token balance in base units.
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	values, err := t.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigResult("balanceOf", values[0])
}

// Tokens reads balances of any ERC-20 token sharing one ABI.
type Tokens struct {
	client evm.RPCClient
	abi    abi.ABI
}

// NewTokens creates a reader for tokens implementing tokenABI.
func NewTokens(client evm.RPCClient, tokenABI abi.ABI) (*Tokens, error) {
	if err := requireMethods(tokenABI, "balanceOf"); err != nil {
		return nil, err
	}
	return &Tokens{client: client, abi: tokenABI}, nil
}

// BalanceOf returns owner's balance of token in base units.
func (t *Tokens) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc := &ERC20{contract{client: t.client, address: token, abi: t.abi}}
	return erc.BalanceOf(ctx, owner)
}
