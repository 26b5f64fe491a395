// Package pipeline executes wallet operations against the chain:
// validate, quote, build, sign, submit, confirm, then record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/events"
	"pol-gateway/internal/evm"
	"pol-gateway/internal/idempotency"
	"pol-gateway/internal/observability"
	"pol-gateway/internal/storage"
	"pol-gateway/internal/storage/memory"
	"pol-gateway/internal/wallet"
)

// Config holds pipeline tuning.
type Config struct {
	POL common.Address // base token
	DAI common.Address // stablecoin

	Deadline        time.Duration // router deadline offset
	ConfirmTimeout  time.Duration // receipt wait bound
	PollInterval    time.Duration // first receipt poll delay
	MaxPollInterval time.Duration // receipt poll delay cap
	SubmitRetries   int           // broadcast attempts, >= 1
	SlippageBps     int64         // lowers quoted minimum output
	GasMultiplier   float64       // applied to eth_estimateGas
	IdempotencyTTL  time.Duration // how long a completed key is remembered
}

// DefaultConfig returns the defaults used when a field is zero.
func DefaultConfig() Config {
	return Config{
		Deadline:        100 * time.Second,
		ConfirmTimeout:  2 * time.Minute,
		PollInterval:    time.Second,
		MaxPollInterval: 8 * time.Second,
		SubmitRetries:   3,
		GasMultiplier:   1.2,
		IdempotencyTTL:  24 * time.Hour,
	}
}

// Router quotes and encodes swaps and liquidity adds.
type Router interface {
	Address() common.Address
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error)
	AddLiquidity(tokenA, tokenB common.Address, amountA, amountB, minA, minB *big.Int, to common.Address, deadline *big.Int) ([]byte, error)
}

// TokenBalances reads ERC-20 balances.
type TokenBalances interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Signer signs transactions for the custodial wallet.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Nonces hands out serialized nonce leases.
type Nonces interface {
	Acquire(ctx context.Context) (*wallet.Lease, error)
}

// ActivityAppender persists confirmed operations.
type ActivityAppender interface {
	Append(ctx context.Context, entry domain.ActivityEntry) error
}

// Evaluator produces the advisory rebalance decision.
type Evaluator interface {
	Evaluate(ctx context.Context) (domain.RebalanceDecision, error)
}

// Deps are the collaborators of a Pipeline. Records, Idempotency,
// Publisher and Logger are optional.
type Deps struct {
	Client      evm.RPCClient
	Router      Router
	Tokens      TokenBalances
	Signer      Signer
	Nonces      Nonces
	Activity    ActivityAppender
	Signal      Evaluator
	Records     storage.TransactionRecordStore
	Idempotency idempotency.Store
	Publisher   events.Publisher
	Logger      zerolog.Logger
}

// Pipeline runs one operation per call. Calls are safe to run concurrently;
// nonce use is serialized by Nonces.
type Pipeline struct {
	cfg       Config
	client    evm.RPCClient
	router    Router
	tokens    TokenBalances
	signer    Signer
	nonces    Nonces
	activity  ActivityAppender
	signal    Evaluator
	records   storage.TransactionRecordStore
	idem      idempotency.Store
	publisher events.Publisher
	logger    zerolog.Logger
	validate  *validator.Validate
	heads     *headSignal
	now       func() time.Time
}

// New creates a Pipeline. Zero Config fields take DefaultConfig values.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Client == nil:
		return nil, errors.New("pipeline: client is required")
	case deps.Router == nil:
		return nil, errors.New("pipeline: router is required")
	case deps.Tokens == nil:
		return nil, errors.New("pipeline: token reader is required")
	case deps.Signer == nil:
		return nil, errors.New("pipeline: signer is required")
	case deps.Nonces == nil:
		return nil, errors.New("pipeline: nonce manager is required")
	case deps.Activity == nil:
		return nil, errors.New("pipeline: activity log is required")
	case deps.Signal == nil:
		return nil, errors.New("pipeline: signal is required")
	}

	def := DefaultConfig()
	if cfg.Deadline <= 0 {
		cfg.Deadline = def.Deadline
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPollInterval < cfg.PollInterval {
		cfg.MaxPollInterval = max(def.MaxPollInterval, cfg.PollInterval)
	}
	if cfg.SubmitRetries < 1 {
		cfg.SubmitRetries = def.SubmitRetries
	}
	if cfg.GasMultiplier < 1 {
		cfg.GasMultiplier = def.GasMultiplier
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.SlippageBps < 0 || cfg.SlippageBps >= bpsDenominator {
		return nil, fmt.Errorf("pipeline: slippage_bps %d out of range", cfg.SlippageBps)
	}

	p := &Pipeline{
		cfg:       cfg,
		client:    deps.Client,
		router:    deps.Router,
		tokens:    deps.Tokens,
		signer:    deps.Signer,
		nonces:    deps.Nonces,
		activity:  deps.Activity,
		signal:    deps.Signal,
		records:   deps.Records,
		idem:      deps.Idempotency,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		validate:  newValidator(),
		heads:     newHeadSignal(),
		now:       time.Now,
	}
	if p.records == nil {
		p.records = memory.NewTransactionRecordStore()
	}
	if p.idem == nil {
		p.idem = idempotency.NewMemory()
	}
	if p.publisher == nil {
		p.publisher = events.Noop{}
	}
	return p, nil
}

// WithClock sets a custom clock for timestamps and deadlines.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// WatchHeads subscribes to new heads so pending receipt polls are retried
// as soon as a block arrives. It returns once subscribed; the watch ends
// when ctx is done or the subscription closes.
func (p *Pipeline) WatchHeads(ctx context.Context, sub evm.HeadSubscriber) error {
	heads, err := sub.SubscribeNewHeads(ctx)
	if err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case h, ok := <-heads:
				if !ok {
					p.logger.Warn().Msg("head subscription closed")
					return
				}
				observability.UpdateHeadBlock(h.Number)
				p.heads.notify()
			}
		}
	}()
	return nil
}

// headSignal broadcasts "a new block arrived" to every waiter by closing
// the current channel and replacing it.
type headSignal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newHeadSignal() *headSignal {
	return &headSignal{ch: make(chan struct{})}
}

func (h *headSignal) wait() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ch
}

func (h *headSignal) notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.ch)
	h.ch = make(chan struct{})
}
