package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/pipeline"
)

const (
	defaultListLimit    = 50
	defaultHistoryLimit = 100
	maxLimit            = 1000
)

type txResponse struct {
	ID       string `json:"id,omitempty"`
	TxHash   string `json:"transaction_hash"`
	Replayed bool   `json:"replayed,omitempty"`
}

type autoRebalanceResponse struct {
	Rebalanced bool                      `json:"rebalanced"`
	TxHash     string                    `json:"transaction_hash,omitempty"`
	ID         string                    `json:"id,omitempty"`
	Insights   *domain.RebalanceDecision `json:"insights,omitempty"`
}

// bind decodes the JSON body. A header Idempotency-Key wins over the body field.
func bind(c *gin.Context, req any, key *string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		abortWithError(c, fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err))
		return false
	}
	if h := c.GetHeader(headerIdempotency); h != "" {
		*key = h
	}
	return true
}

func respondTx(c *gin.Context, res *pipeline.Result, err error) {
	if err != nil {
		if res != nil && res.TxHash != "" {
			abortWithTxError(c, res.TxHash, err)
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, txResponse{ID: res.RecordID, TxHash: res.TxHash, Replayed: res.Replayed})
}

func (s *Server) send(c *gin.Context) {
	var req pipeline.TransferRequest
	if !bind(c, &req, &req.IdempotencyKey) {
		return
	}
	res, err := s.ops.Transfer(c.Request.Context(), req)
	respondTx(c, res, err)
}

func (s *Server) buy(c *gin.Context) {
	var req pipeline.BuyRequest
	if !bind(c, &req, &req.IdempotencyKey) {
		return
	}
	res, err := s.ops.BuyWithStablecoin(c.Request.Context(), req)
	respondTx(c, res, err)
}

func (s *Server) sell(c *gin.Context) {
	var req pipeline.SellRequest
	if !bind(c, &req, &req.IdempotencyKey) {
		return
	}
	res, err := s.ops.SellForStablecoin(c.Request.Context(), req)
	respondTx(c, res, err)
}

func (s *Server) swap(c *gin.Context) {
	var req pipeline.SwapRequest
	if !bind(c, &req, &req.IdempotencyKey) {
		return
	}
	res, err := s.ops.SwapBaseToken(c.Request.Context(), req)
	respondTx(c, res, err)
}

func (s *Server) rebalance(c *gin.Context) {
	var req pipeline.RebalanceRequest
	if !bind(c, &req, &req.IdempotencyKey) {
		return
	}
	res, err := s.ops.AddLiquidityRebalance(c.Request.Context(), req)
	respondTx(c, res, err)
}

func (s *Server) autoRebalance(c *gin.Context) {
	var req pipeline.RebalanceRequest
	if !bind(c, &req, &req.IdempotencyKey) {
		return
	}
	res, err := s.ops.AutoRebalance(c.Request.Context(), req)
	if err != nil {
		respondTx(c, res, err)
		return
	}
	c.JSON(http.StatusOK, autoRebalanceResponse{
		Rebalanced: res.Executed,
		TxHash:     res.TxHash,
		ID:         res.RecordID,
		Insights:   res.Decision,
	})
}

func (s *Server) price(symbol string) gin.HandlerFunc {
	return func(c *gin.Context) {
		price, err := s.prices.GetPrice(c.Request.Context(), symbol)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"price": price})
	}
}

func (s *Server) priceHistory(c *gin.Context) {
	feed := strings.ToUpper(c.DefaultQuery("feed", "pol"))
	if feed != domain.SymbolPOL && feed != domain.SymbolDAI {
		abortWithError(c, fmt.Errorf("%w: feed must be pol or dai", domain.ErrValidation))
		return
	}
	limit, ok := queryLimit(c, defaultHistoryLimit)
	if !ok {
		return
	}
	samples, err := s.prices.History(c.Request.Context(), feed, limit)
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]gin.H, 0, len(samples))
	for _, p := range samples {
		out = append(out, gin.H{
			"feed":         p.Feed,
			"symbol":       p.Symbol,
			"price":        p.Price,
			"answer":       p.Answer,
			"timestamp_ms": p.TimestampMs,
		})
	}
	c.JSON(http.StatusOK, gin.H{"samples": out})
}

func (s *Server) rebalanceInsights(c *gin.Context) {
	decision, err := s.insights.Evaluate(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) log(c *gin.Context) {
	raw, err := s.activity.Raw(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": raw})
}

func (s *Server) listTransactions(c *gin.Context) {
	limit, ok := queryLimit(c, defaultListLimit)
	if !ok {
		return
	}
	records, err := s.records.List(c.Request.Context(), limit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if records == nil {
		records = []*domain.TransactionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records})
}

func (s *Server) getTransaction(c *gin.Context) {
	record, err := s.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"wallet":         s.wallet.Hex(),
		"chain_id":       s.chainID,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxLimit {
		abortWithError(c, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxLimit))
		return 0, false
	}
	return n, true
}
