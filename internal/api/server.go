// Package api exposes the gateway over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/observability"
	"pol-gateway/internal/pipeline"
)

// Operations are the state-changing pipeline calls.
type Operations interface {
	Transfer(ctx context.Context, req pipeline.TransferRequest) (*pipeline.Result, error)
	BuyWithStablecoin(ctx context.Context, req pipeline.BuyRequest) (*pipeline.Result, error)
	SellForStablecoin(ctx context.Context, req pipeline.SellRequest) (*pipeline.Result, error)
	SwapBaseToken(ctx context.Context, req pipeline.SwapRequest) (*pipeline.Result, error)
	AddLiquidityRebalance(ctx context.Context, req pipeline.RebalanceRequest) (*pipeline.Result, error)
	AutoRebalance(ctx context.Context, req pipeline.RebalanceRequest) (*pipeline.Result, error)
}

// Prices serves oracle reads and stored samples.
type Prices interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	History(ctx context.Context, symbol string, limit int) ([]*domain.PriceSample, error)
}

// Insights evaluates the rebalance signal.
type Insights interface {
	Evaluate(ctx context.Context) (domain.RebalanceDecision, error)
}

// ActivityReader returns the raw activity log.
type ActivityReader interface {
	Raw(ctx context.Context) (string, error)
}

// Records is the read side of the transaction record store.
type Records interface {
	GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error)
	List(ctx context.Context, limit int) ([]*domain.TransactionRecord, error)
}

// Deps wires the handlers.
type Deps struct {
	Operations Operations
	Prices     Prices
	Insights   Insights
	Activity   ActivityReader
	Records    Records
	Wallet     common.Address
	ChainID    int64
	Logger     zerolog.Logger
}

// Server holds the handler dependencies.
type Server struct {
	ops      Operations
	prices   Prices
	insights Insights
	activity ActivityReader
	records  Records
	wallet   common.Address
	chainID  int64
	started  time.Time
	logger   zerolog.Logger
}

// New creates a Server.
func New(deps Deps) *Server {
	return &Server{
		ops:      deps.Operations,
		prices:   deps.Prices,
		insights: deps.Insights,
		activity: deps.Activity,
		records:  deps.Records,
		wallet:   deps.Wallet,
		chainID:  deps.ChainID,
		started:  time.Now(),
		logger:   deps.Logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/status", s.status)
	r.GET("/metrics", gin.WrapH(observability.Handler()))

	r.POST("/send", s.send)
	r.POST("/buy-pol", s.buy)
	r.POST("/sell-pol", s.sell)
	r.POST("/swap-pol", s.swap)
	r.POST("/rebalance", s.rebalance)
	r.POST("/auto-rebalance", s.autoRebalance)

	r.GET("/get-pol-price", s.price(domain.SymbolPOL))
	r.GET("/get-dai-price", s.price(domain.SymbolDAI))
	r.GET("/price-history", s.priceHistory)
	r.GET("/rebalance-insights", s.rebalanceInsights)
	r.GET("/log", s.log)

	r.GET("/transactions", s.listTransactions)
	r.GET("/transactions/:id", s.getTransaction)

	return r
}
