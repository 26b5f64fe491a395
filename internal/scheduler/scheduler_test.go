package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/pipeline"
)

type countingOracle struct {
	calls atomic.Int32
	err   error
}

func (o *countingOracle) Snapshot(context.Context) ([]*domain.PriceSample, error) {
	o.calls.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return []*domain.PriceSample{{Symbol: domain.SymbolPOL, Price: 0.5}}, nil
}

type recordingRebalancer struct {
	calls atomic.Int32
	last  pipeline.RebalanceRequest
}

func (r *recordingRebalancer) AutoRebalance(_ context.Context, req pipeline.RebalanceRequest) (*pipeline.Result, error) {
	r.calls.Add(1)
	r.last = req
	return &pipeline.Result{Executed: false}, nil
}

func TestRegister(t *testing.T) {
	s := New(context.Background(), &countingOracle{}, &recordingRebalancer{}, zerolog.Nop())

	n, err := s.Register(Config{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.Register(Config{PriceSnapshotCron: "0 */5 * * * *", AutoRebalanceCron: "0 0 * * * *"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegister_InvalidSpec(t *testing.T) {
	s := New(context.Background(), &countingOracle{}, nil, zerolog.Nop())

	_, err := s.Register(Config{PriceSnapshotCron: "every five minutes"})
	assert.Error(t, err)

	_, err = s.Register(Config{AutoRebalanceCron: "0 0 * * * *"})
	assert.Error(t, err, "auto-rebalance without a pipeline")
}

func TestRunNow(t *testing.T) {
	oracle := &countingOracle{}
	rebalancer := &recordingRebalancer{}
	req := pipeline.RebalanceRequest{
		TokenA:  "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063",
		TokenB:  "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		AmountA: decimal.NewFromInt(1),
		AmountB: decimal.NewFromInt(1),
	}
	s := New(context.Background(), oracle, rebalancer, zerolog.Nop())
	_, err := s.Register(Config{AutoRebalance: req})
	require.NoError(t, err)

	s.RunPriceSnapshotNow()
	s.RunAutoRebalanceNow()

	assert.Equal(t, int32(1), oracle.calls.Load())
	assert.Equal(t, int32(1), rebalancer.calls.Load())
	assert.Equal(t, req, rebalancer.last)
}

func TestJobFailureDoesNotPanic(t *testing.T) {
	oracle := &countingOracle{err: errors.New("feed down")}
	s := New(context.Background(), oracle, nil, zerolog.Nop())

	assert.NotPanics(t, s.RunPriceSnapshotNow)
}

func TestCronFires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing test in short mode")
	}
	oracle := &countingOracle{}
	s := New(context.Background(), oracle, nil, zerolog.Nop())
	_, err := s.Register(Config{PriceSnapshotCron: "* * * * * *"})
	require.NoError(t, err)

	s.Start()
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool { return oracle.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
}
