package pipeline

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"pol-gateway/internal/domain"
)

const (
	tokenDecimals  = 18
	bpsDenominator = 10_000
)

// ToWei converts a whole-token amount to base units, truncating digits
// beyond 18 decimals.
func ToWei(amount decimal.Decimal) (*big.Int, error) {
	wei := amount.Shift(tokenDecimals).Truncate(0).BigInt()
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %s is below one base unit", domain.ErrValidation, amount)
	}
	return wei, nil
}

// FromWei converts base units to a whole-token float for the activity log.
func FromWei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -tokenDecimals).InexactFloat64()
}

// MinOut lowers a quoted output by bps basis points.
func MinOut(quoted *big.Int, bps int64) *big.Int {
	if bps <= 0 {
		return new(big.Int).Set(quoted)
	}
	out := new(big.Int).Mul(quoted, big.NewInt(bpsDenominator-bps))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// GasLimit scales an estimate by multiplier, rounding up.
func GasLimit(estimate uint64, multiplier float64) uint64 {
	if multiplier <= 1 {
		return estimate
	}
	return uint64(math.Ceil(float64(estimate) * multiplier))
}
