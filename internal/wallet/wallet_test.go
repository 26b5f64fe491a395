package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pol-gateway/internal/evm/stub"
	"pol-gateway/internal/lock"
)

// well-known key from the web3.js account docs
const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewSigner(t *testing.T) {
	s, err := NewSigner(testKey, big.NewInt(137))
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), s.Address())
	assert.Equal(t, int64(137), s.ChainID().Int64())

	_, err = NewSigner("not-a-key", big.NewInt(137))
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.NotContains(t, err.Error(), "not-a-key")

	_, err = NewSigner(testKey, big.NewInt(0))
	assert.Error(t, err)
}

func TestSigner_DoesNotPrintKey(t *testing.T) {
	s, err := NewSigner(testKey, big.NewInt(137))
	require.NoError(t, err)

	for _, format := range []string{"%v", "%+v", "%#v", "%s"} {
		out := fmt.Sprintf(format, s)
		assert.NotContains(t, out, "4c0883a6", "format %s leaked key", format)
	}
}

func TestSigner_SignTx(t *testing.T) {
	s, err := NewSigner(testKey, big.NewInt(137))
	require.NoError(t, err)

	to := common.HexToAddress("0x71C7656EC7ab88b098defB751B7401B5f6d8976F")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    3,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(10),
	})

	signed, err := s.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(137)), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
	assert.True(t, signed.Protected())
	assert.Equal(t, int64(137), signed.ChainId().Int64())
}

func TestNonceManager_ConcurrentLeasesAreDistinct(t *testing.T) {
	chain := stub.NewRPCClient()
	addr := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	chain.Nonces[addr] = 5

	m := NewNonceManager(chain, lock.NewLocal(), addr, time.Minute)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		nonces []uint64
		wg     sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := m.Acquire(ctx)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			nonces = append(nonces, lease.Nonce)
			mu.Unlock()
			assert.NoError(t, lease.Commit(ctx))
		}()
	}
	wg.Wait()

	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	want := []uint64{5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
	assert.Equal(t, want, nonces)
}

func TestNonceManager_AbortResyncsFromChain(t *testing.T) {
	chain := stub.NewRPCClient()
	addr := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	m := NewNonceManager(chain, lock.NewLocal(), addr, time.Minute)
	ctx := context.Background()

	lease, err := m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lease.Nonce)
	require.NoError(t, lease.Commit(ctx))

	lease, err = m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lease.Nonce, "committed counter ahead of chain")
	require.NoError(t, lease.Abort(ctx))
	require.NoError(t, lease.Commit(ctx), "second finish is a no-op")

	lease, err = m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), lease.Nonce, "abort drops the local counter")
	require.NoError(t, lease.Abort(ctx))
}

func TestNonceManager_ChainAhead(t *testing.T) {
	chain := stub.NewRPCClient()
	addr := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	m := NewNonceManager(chain, lock.NewLocal(), addr, time.Minute)
	ctx := context.Background()

	lease, err := m.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, lease.Commit(ctx))

	// another replica used nonces 1..4
	chain.Nonces[addr] = 5

	lease, err = m.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), lease.Nonce)
	require.NoError(t, lease.Commit(ctx))
}

type failingSource struct{}

func (failingSource) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, errors.New("node down")
}

func TestNonceManager_SourceErrorReleasesLock(t *testing.T) {
	locker := lock.NewLocal()
	addr := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	m := NewNonceManager(failingSource{}, locker, addr, time.Minute)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	release, err := locker.Lock(ctx, "nonce:"+addr.Hex(), 0)
	require.NoError(t, err, "lock must be free after a failed acquire")
	release(ctx)
}
