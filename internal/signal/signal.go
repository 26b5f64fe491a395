// Package signal derives advisory buy/sell/rebalance flags from the
// activity log using a simple moving average.
package signal

import (
	"context"
	"errors"
	"fmt"

	"pol-gateway/internal/domain"
)

// WindowSize is the number of trailing entries averaged.
const WindowSize = 10

// Thresholds relative to the window average.
const (
	upperBand = 1.1
	lowerBand = 0.9
)

// EntrySource supplies the ordered activity log.
type EntrySource interface {
	ReadAll(ctx context.Context) ([]domain.ActivityEntry, error)
}

// Signal evaluates the rebalance decision on demand. It holds no state
// between calls.
type Signal struct {
	source EntrySource
}

// New creates a Signal over source.
func New(source EntrySource) *Signal {
	return &Signal{source: source}
}

// Evaluate reads the whole log and decides over its last WindowSize entries.
// Log read failures are returned unchanged.
func (s *Signal) Evaluate(ctx context.Context) (domain.RebalanceDecision, error) {
	entries, err := s.source.ReadAll(ctx)
	if err != nil {
		return domain.RebalanceDecision{}, fmt.Errorf("read activity log: %w", err)
	}
	return Decide(entries), nil
}

// Decide applies the priority chain buy > sell > rebalance to the last
// WindowSize entries. Fewer entries yield no recommendation.
// All entries count regardless of kind; comparisons are exact.
func Decide(entries []domain.ActivityEntry) domain.RebalanceDecision {
	var d domain.RebalanceDecision
	if len(entries) < WindowSize {
		return d
	}

	window := entries[len(entries)-WindowSize:]
	var sumA, sumB float64
	for _, e := range window {
		sumA += e.AmountA
		sumB += e.AmountB
	}
	avgA := sumA / WindowSize
	avgB := sumB / WindowSize

	cur := window[len(window)-1]
	switch {
	case cur.AmountA > avgA*upperBand:
		d.Buy = true
	case cur.AmountB > avgB*upperBand:
		d.Sell = true
	case cur.AmountA < avgA*lowerBand || cur.AmountB < avgB*lowerBand:
		d.Rebalance = true
	}
	return d
}

// SMA is the arithmetic mean of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), nil
}
