// Package oracle reads POL and DAI prices from on-chain price feeds.
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/observability"
	"pol-gateway/internal/storage"
)

// Decimals is the fixed-point scale of feed answers.
const Decimals = 8

// Feed is a price feed contract exposing latestAnswer().
type Feed interface {
	LatestAnswer(ctx context.Context) (*big.Int, error)
	Address() common.Address
}

// Oracle is a read-through price accessor. Every call queries the chain.
type Oracle struct {
	feeds  map[string]Feed
	order  []string
	store  storage.PriceSampleStore
	now    func() time.Time
	logger zerolog.Logger
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithStore records snapshots into store.
func WithStore(store storage.PriceSampleStore) Option {
	return func(o *Oracle) { o.store = store }
}

// WithClock overrides the sample timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) { o.now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Oracle) { o.logger = l }
}

// New creates an Oracle over the POL and DAI feeds. Both may point at the
// same contract.
func New(pol, dai Feed, opts ...Option) *Oracle {
	o := &Oracle{
		feeds:  map[string]Feed{domain.SymbolPOL: pol, domain.SymbolDAI: dai},
		order:  []string{domain.SymbolPOL, domain.SymbolDAI},
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetPrice returns latestAnswer / 10^8 for the feed serving symbol.
func (o *Oracle) GetPrice(ctx context.Context, symbol string) (float64, error) {
	s, err := o.read(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return s.Price, nil
}

// Snapshot reads every feed and stores the samples under one timestamp.
// Nothing is stored when any read fails.
func (o *Oracle) Snapshot(ctx context.Context) ([]*domain.PriceSample, error) {
	ts := o.now().UnixMilli()
	samples := make([]*domain.PriceSample, 0, len(o.order))
	for _, sym := range o.order {
		s, err := o.read(ctx, sym)
		if err != nil {
			return nil, err
		}
		s.TimestampMs = ts
		samples = append(samples, s)
	}

	if o.store != nil {
		if err := o.store.InsertBulk(ctx, samples); err != nil {
			return nil, fmt.Errorf("store price samples: %w", err)
		}
	}
	o.logger.Debug().Int64("timestamp_ms", ts).Int("samples", len(samples)).Msg("price snapshot stored")
	return samples, nil
}

// History returns up to limit stored samples for symbol, oldest first.
func (o *Oracle) History(ctx context.Context, symbol string, limit int) ([]*domain.PriceSample, error) {
	sym, err := o.symbol(symbol)
	if err != nil {
		return nil, err
	}
	if o.store == nil {
		return []*domain.PriceSample{}, nil
	}
	return o.store.GetRecent(ctx, sym, limit)
}

func (o *Oracle) symbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := o.feeds[sym]; !ok {
		return "", fmt.Errorf("%w: unknown price feed %q", domain.ErrValidation, s)
	}
	return sym, nil
}

func (o *Oracle) read(ctx context.Context, symbol string) (*domain.PriceSample, error) {
	sym, err := o.symbol(symbol)
	if err != nil {
		return nil, err
	}
	feed := o.feeds[sym]

	raw, err := feed.LatestAnswer(ctx)
	if err != nil {
		observability.RecordOracleRead(sym, 0, err)
		return nil, fmt.Errorf("%w: %s feed %s: %v", domain.ErrOracle, sym, feed.Address().Hex(), err)
	}
	price, answer, err := Scale(raw)
	if err != nil {
		observability.RecordOracleRead(sym, 0, err)
		return nil, fmt.Errorf("%w: %s feed %s: %v", domain.ErrOracle, sym, feed.Address().Hex(), err)
	}
	observability.RecordOracleRead(sym, price, nil)

	return &domain.PriceSample{
		Feed:        feed.Address().Hex(),
		Symbol:      sym,
		Price:       price,
		Answer:      answer,
		TimestampMs: o.now().UnixMilli(),
	}, nil
}

// Scale converts a raw feed answer into a price.
func Scale(answer *big.Int) (float64, int64, error) {
	if answer == nil {
		return 0, 0, fmt.Errorf("empty answer")
	}
	if answer.Sign() <= 0 {
		return 0, 0, fmt.Errorf("non-positive answer %s", answer)
	}
	if !answer.IsInt64() {
		return 0, 0, fmt.Errorf("answer %s out of range", answer)
	}
	price, _ := decimal.NewFromBigInt(answer, -Decimals).Float64()
	return price, answer.Int64(), nil
}
