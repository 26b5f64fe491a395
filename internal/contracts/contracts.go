// Package contracts packs calls to and unpacks results from the router,
// the price feed and ERC-20 tokens.
package contracts

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"pol-gateway/internal/evm"
)

//go:embed abi/*.json
var abiFS embed.FS

// Embedded ABI file names.
const (
	RouterABI    = "router.json"
	PriceFeedABI = "price_feed.json"
	ERC20ABI     = "erc20.json"
)

// LoadABI parses the ABI at path, or the embedded file name when path is empty.
func LoadABI(path, name string) (abi.ABI, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = abiFS.ReadFile("abi/" + name)
	}
	if err != nil {
		return abi.ABI{}, fmt.Errorf("read abi %s: %w", name, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi %s: %w", name, err)
	}
	return parsed, nil
}

// requireMethods fails fast when a configured ABI file lacks a method we call.
func requireMethods(a abi.ABI, names ...string) error {
	for _, n := range names {
		if _, ok := a.Methods[n]; !ok {
			return fmt.Errorf("abi missing method %s", n)
		}
	}
	return nil
}

// contract binds an ABI to an address for eth_call reads.
type contract struct {
	client  evm.RPCClient
	address common.Address
	abi     abi.ABI
}

func (c *contract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := c.address
	out, err := c.client.Call(ctx, evm.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty result from %s", method, c.address.Hex())
	}

	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

// Address returns the bound contract address.
func (c *contract) Address() common.Address {
	return c.address
}

func bigResult(method string, v any) (*big.Int, error) {
	n, ok := v.(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, v)
	}
	return n, nil
}
