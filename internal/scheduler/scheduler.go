// Package scheduler runs the periodic price snapshot and the optional
// automated rebalance on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/observability"
	"pol-gateway/internal/pipeline"
)

// Job names used in logs and metrics.
const (
	JobPriceSnapshot = "price_snapshot"
	JobAutoRebalance = "auto_rebalance"
)

// Snapshotter records current prices.
type Snapshotter interface {
	Snapshot(ctx context.Context) ([]*domain.PriceSample, error)
}

// Rebalancer runs the signal-gated liquidity add.
type Rebalancer interface {
	AutoRebalance(ctx context.Context, req pipeline.RebalanceRequest) (*pipeline.Result, error)
}

// Config selects the jobs to run. An empty cron spec disables its job.
type Config struct {
	PriceSnapshotCron string
	AutoRebalanceCron string
	AutoRebalance     pipeline.RebalanceRequest
	JobTimeout        time.Duration // per run, 0 means none
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	oracle     Snapshotter
	rebalancer Rebalancer
	cfg        Config
	logger     zerolog.Logger
}

// New creates a Scheduler. Jobs run with ctx; overlapping runs of the same
// job are skipped.
func New(ctx context.Context, oracle Snapshotter, rebalancer Rebalancer, logger zerolog.Logger) *Scheduler {
	cronLog := cron.PrintfLogger(&logger)
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog))),
		ctx:        ctx,
		oracle:     oracle,
		rebalancer: rebalancer,
		logger:     logger,
	}
}

// Register adds the configured jobs and returns how many were scheduled.
func (s *Scheduler) Register(cfg Config) (int, error) {
	s.cfg = cfg
	n := 0
	if cfg.PriceSnapshotCron != "" {
		if s.oracle == nil {
			return n, fmt.Errorf("register %s: no oracle", JobPriceSnapshot)
		}
		if _, err := s.cron.AddFunc(cfg.PriceSnapshotCron, s.priceSnapshot); err != nil {
			return n, fmt.Errorf("register %s: %w", JobPriceSnapshot, err)
		}
		n++
	}
	if cfg.AutoRebalanceCron != "" {
		if s.rebalancer == nil {
			return n, fmt.Errorf("register %s: no pipeline", JobAutoRebalance)
		}
		if _, err := s.cron.AddFunc(cfg.AutoRebalanceCron, s.autoRebalance); err != nil {
			return n, fmt.Errorf("register %s: %w", JobAutoRebalance, err)
		}
		n++
	}
	return n, nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("scheduler stop timed out with jobs running")
	}
}

// RunPriceSnapshotNow executes the snapshot job immediately.
func (s *Scheduler) RunPriceSnapshotNow() {
	s.priceSnapshot()
}

// RunAutoRebalanceNow executes the auto-rebalance job immediately.
func (s *Scheduler) RunAutoRebalanceNow() {
	s.autoRebalance()
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	if s.cfg.JobTimeout > 0 {
		return context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	}
	return context.WithCancel(s.ctx)
}

func (s *Scheduler) priceSnapshot() {
	ctx, cancel := s.jobContext()
	defer cancel()
	start := time.Now()

	samples, err := s.oracle.Snapshot(ctx)
	if err != nil {
		observability.RecordJobRun(JobPriceSnapshot, "error", time.Since(start).Seconds())
		s.logger.Error().Err(err).Str("job", JobPriceSnapshot).Msg("job failed")
		return
	}
	observability.RecordJobRun(JobPriceSnapshot, "success", time.Since(start).Seconds())

	ev := s.logger.Debug().Str("job", JobPriceSnapshot)
	for _, p := range samples {
		ev = ev.Float64(p.Symbol, p.Price)
	}
	ev.Msg("prices recorded")
}

func (s *Scheduler) autoRebalance() {
	ctx, cancel := s.jobContext()
	defer cancel()
	start := time.Now()

	res, err := s.rebalancer.AutoRebalance(ctx, s.cfg.AutoRebalance)
	if err != nil {
		observability.RecordJobRun(JobAutoRebalance, "error", time.Since(start).Seconds())
		s.logger.Error().Err(err).Str("job", JobAutoRebalance).Msg("job failed")
		return
	}

	status := "skipped"
	if res.Executed {
		status = "success"
	}
	observability.RecordJobRun(JobAutoRebalance, status, time.Since(start).Seconds())
	s.logger.Info().
		Str("job", JobAutoRebalance).
		Bool("executed", res.Executed).
		Str("tx_hash", res.TxHash).
		Msg("auto-rebalance evaluated")
}
