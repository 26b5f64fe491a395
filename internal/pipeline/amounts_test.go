package pipeline

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pol-gateway/internal/domain"
)

func TestToWei(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1", "1000000000000000000"},
		{"1.5", "1500000000000000000"},
		{"0.1", "100000000000000000"},
		{"0.000000000000000001", "1"},
		{"2.0000000000000000019", "2000000000000000001"}, // truncated
	}
	for _, tt := range tests {
		got, err := ToWei(decimal.RequireFromString(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got.String(), tt.in)
	}

	_, err := ToWei(decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFromWei(t *testing.T) {
	assert.Equal(t, 1.5, FromWei(big.NewInt(1_500_000_000_000_000_000)))
	assert.Equal(t, 0.0, FromWei(nil))
}

func TestMinOut(t *testing.T) {
	assert.Equal(t, big.NewInt(1000), MinOut(big.NewInt(1000), 0))
	assert.Equal(t, big.NewInt(995), MinOut(big.NewInt(1000), 50))
	assert.Equal(t, big.NewInt(9), MinOut(big.NewInt(10), 50)) // rounds down
}

func TestGasLimit(t *testing.T) {
	assert.Equal(t, uint64(25_200), GasLimit(21_000, 1.2))
	assert.Equal(t, uint64(21_000), GasLimit(21_000, 1))
	assert.Equal(t, uint64(4), GasLimit(3, 1.1)) // rounds up
}
