package contracts

import (
	"bytes"
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pol-gateway/internal/evm"
	"pol-gateway/internal/evm/stub"
)

var (
	routerAddr = common.HexToAddress("0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff")
	feedAddr   = common.HexToAddress("0xAB594600376Ec9fD91F8e885dADF0CE036862dE0")
	polAddr    = common.HexToAddress("0x0000000000000000000000000000000000001010")
	daiAddr    = common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063")
	wallet     = common.HexToAddress("0x71C7656EC7ab88b098defB751B7401B5f6d8976F")
)

func mustABI(t *testing.T, name string) abi.ABI {
	t.Helper()
	a, err := LoadABI("", name)
	require.NoError(t, err)
	return a
}

// answer packs outputs of method as the node would return them.
func answer(t *testing.T, a abi.ABI, method string, values ...any) []byte {
	t.Helper()
	out, err := a.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return out
}

func TestLoadABI_FileOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"type":"function","name":"latestAnswer","inputs":[],"outputs":[{"name":"","type":"int256"}],"stateMutability":"view"}]`), 0o600))

	a, err := LoadABI(path, PriceFeedABI)
	require.NoError(t, err)
	assert.Contains(t, a.Methods, "latestAnswer")

	_, err = LoadABI(filepath.Join(t.TempDir(), "missing.json"), PriceFeedABI)
	assert.Error(t, err)
}

func TestNewRouter_RequiresMethods(t *testing.T) {
	feedABI := mustABI(t, PriceFeedABI)
	_, err := NewRouter(stub.NewRPCClient(), routerAddr, feedABI)
	assert.ErrorContains(t, err, "getAmountsOut")
}

func TestRouter_GetAmountsOut(t *testing.T) {
	routerABI := mustABI(t, RouterABI)
	chain := stub.NewRPCClient()
	chain.CallFn = func(msg evm.CallMsg, _ *big.Int) ([]byte, error) {
		assert.Equal(t, routerAddr, *msg.To)
		assert.True(t, bytes.HasPrefix(msg.Data, routerABI.Methods["getAmountsOut"].ID))
		return answer(t, routerABI, "getAmountsOut", []*big.Int{big.NewInt(100), big.NewInt(250)}), nil
	}

	router, err := NewRouter(chain, routerAddr, routerABI)
	require.NoError(t, err)

	amounts, err := router.GetAmountsOut(context.Background(), big.NewInt(100), []common.Address{daiAddr, polAddr})
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	assert.Equal(t, int64(250), amounts[1].Int64())
}

func TestRouter_GetAmountsOut_EmptyResult(t *testing.T) {
	chain := stub.NewRPCClient()
	chain.CallFn = func(evm.CallMsg, *big.Int) ([]byte, error) { return nil, nil }

	router, err := NewRouter(chain, routerAddr, mustABI(t, RouterABI))
	require.NoError(t, err)

	_, err = router.GetAmountsOut(context.Background(), big.NewInt(1), []common.Address{daiAddr, polAddr})
	assert.ErrorContains(t, err, "empty result")
}

func TestRouter_PackWrites(t *testing.T) {
	routerABI := mustABI(t, RouterABI)
	router, err := NewRouter(stub.NewRPCClient(), routerAddr, routerABI)
	require.NoError(t, err)

	data, err := router.SwapExactTokensForTokens(big.NewInt(10), big.NewInt(9), []common.Address{polAddr, daiAddr}, wallet, big.NewInt(1_700_000_100))
	require.NoError(t, err)
	assert.Equal(t, routerABI.Methods["swapExactTokensForTokens"].ID, data[:4])

	args, err := routerABI.Methods["swapExactTokensForTokens"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(9), args[1].(*big.Int).Int64())
	assert.Equal(t, wallet, args[3].(common.Address))

	data, err = router.AddLiquidity(polAddr, daiAddr, big.NewInt(5), big.NewInt(6), big.NewInt(1), big.NewInt(1), wallet, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, routerABI.Methods["addLiquidity"].ID, data[:4])
}

func TestPriceFeed_LatestAnswer(t *testing.T) {
	feedABI := mustABI(t, PriceFeedABI)
	chain := stub.NewRPCClient()
	chain.CallFn = func(msg evm.CallMsg, _ *big.Int) ([]byte, error) {
		assert.Equal(t, feedAddr, *msg.To)
		return answer(t, feedABI, "latestAnswer", big.NewInt(52_345_678)), nil
	}

	feed, err := NewPriceFeed(chain, feedAddr, feedABI)
	require.NoError(t, err)

	v, err := feed.LatestAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(52_345_678), v.Int64())
	assert.Equal(t, feedAddr, feed.Address())
}

func TestERC20_BalanceOf(t *testing.T) {
	tokenABI := mustABI(t, ERC20ABI)
	chain := stub.NewRPCClient()
	chain.CallFn = func(msg evm.CallMsg, _ *big.Int) ([]byte, error) {
		args, err := tokenABI.Methods["balanceOf"].Inputs.Unpack(msg.Data[4:])
		require.NoError(t, err)
		assert.Equal(t, wallet, args[0].(common.Address))
		return answer(t, tokenABI, "balanceOf", big.NewInt(42)), nil
	}

	token, err := NewERC20(chain, daiAddr, tokenABI)
	require.NoError(t, err)

	bal, err := token.BalanceOf(context.Background(), wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal.Int64())
}

func TestTokens_BalanceOf(t *testing.T) {
	tokenABI := mustABI(t, ERC20ABI)
	chain := stub.NewRPCClient()
	chain.CallFn = func(msg evm.CallMsg, _ *big.Int) ([]byte, error) {
		if *msg.To == daiAddr {
			return answer(t, tokenABI, "balanceOf", big.NewInt(7)), nil
		}
		return answer(t, tokenABI, "balanceOf", big.NewInt(9)), nil
	}

	tokens, err := NewTokens(chain, tokenABI)
	require.NoError(t, err)

	dai, err := tokens.BalanceOf(context.Background(), daiAddr, wallet)
	require.NoError(t, err)
	pol, err := tokens.BalanceOf(context.Background(), polAddr, wallet)
	require.NoError(t, err)
	assert.Equal(t, int64(7), dai.Int64())
	assert.Equal(t, int64(9), pol.Int64())
}

func TestRevertReason(t *testing.T) {
	// Error(string) selector + abi-encoded "K: EXPIRED"
	strType, _ := abi.NewType("string", "", nil)
	payload, err := abi.Arguments{{Type: strType}}.Pack("K: EXPIRED")
	require.NoError(t, err)
	data := append([]byte{0x08, 0xc3, 0x79, 0xa0}, payload...)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"encoded data", &evm.RPCError{Code: 3, Message: "execution reverted", Data: hexutil.Encode(data)}, "K: EXPIRED"},
		{"message only", &evm.RPCError{Code: -32000, Message: "execution reverted: INSUFFICIENT_OUTPUT_AMOUNT"}, "INSUFFICIENT_OUTPUT_AMOUNT"},
		{"bare revert", &evm.RPCError{Code: -32000, Message: "execution reverted"}, ""},
		{"not rpc", assert.AnError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RevertReason(tt.err))
		})
	}
}
