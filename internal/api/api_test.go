package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pol-gateway/internal/domain"
	"pol-gateway/internal/pipeline"
	"pol-gateway/internal/storage"
	"pol-gateway/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOps struct {
	transfer  pipeline.TransferRequest
	buy       pipeline.BuyRequest
	sell      pipeline.SellRequest
	swap      pipeline.SwapRequest
	rebalance pipeline.RebalanceRequest

	res *pipeline.Result
	err error
}

func (f *fakeOps) Transfer(_ context.Context, req pipeline.TransferRequest) (*pipeline.Result, error) {
	f.transfer = req
	return f.res, f.err
}

func (f *fakeOps) BuyWithStablecoin(_ context.Context, req pipeline.BuyRequest) (*pipeline.Result, error) {
	f.buy = req
	return f.res, f.err
}

func (f *fakeOps) SellForStablecoin(_ context.Context, req pipeline.SellRequest) (*pipeline.Result, error) {
	f.sell = req
	return f.res, f.err
}

func (f *fakeOps) SwapBaseToken(_ context.Context, req pipeline.SwapRequest) (*pipeline.Result, error) {
	f.swap = req
	return f.res, f.err
}

func (f *fakeOps) AddLiquidityRebalance(_ context.Context, req pipeline.RebalanceRequest) (*pipeline.Result, error) {
	f.rebalance = req
	return f.res, f.err
}

func (f *fakeOps) AutoRebalance(_ context.Context, req pipeline.RebalanceRequest) (*pipeline.Result, error) {
	f.rebalance = req
	return f.res, f.err
}

type fakePrices struct {
	prices  map[string]float64
	samples []*domain.PriceSample
	err     error
	symbol  string
	limit   int
}

func (f *fakePrices) GetPrice(_ context.Context, symbol string) (float64, error) {
	return f.prices[symbol], f.err
}

func (f *fakePrices) History(_ context.Context, symbol string, limit int) ([]*domain.PriceSample, error) {
	f.symbol, f.limit = symbol, limit
	return f.samples, f.err
}

type fakeInsights struct {
	decision domain.RebalanceDecision
	err      error
}

func (f fakeInsights) Evaluate(context.Context) (domain.RebalanceDecision, error) {
	return f.decision, f.err
}

type fakeActivity struct {
	raw string
	err error
}

func (f fakeActivity) Raw(context.Context) (string, error) { return f.raw, f.err }

type harness struct {
	ops      *fakeOps
	prices   *fakePrices
	insights *fakeInsights
	activity *fakeActivity
	records  *memory.TransactionRecordStore
	router   *gin.Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		ops:      &fakeOps{res: &pipeline.Result{RecordID: "rec-1", TxHash: "0xabc", Executed: true}},
		prices:   &fakePrices{prices: map[string]float64{domain.SymbolPOL: 0.52, domain.SymbolDAI: 0.9999}},
		insights: &fakeInsights{},
		activity: &fakeActivity{},
		records:  memory.NewTransactionRecordStore(),
	}
	s := New(Deps{
		Operations: h.ops,
		Prices:     h.prices,
		Insights:   h.insights,
		Activity:   h.activity,
		Records:    h.records,
		Wallet:     common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		ChainID:    137,
		Logger:     zerolog.Nop(),
	})
	h.router = s.Router()
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestSend(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodPost, "/send",
		`{"recipient_address":"0x00000000000000000000000000000000000000bb","amount_in_pol":1.5}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xabc", body["transaction_hash"])
	assert.Equal(t, "rec-1", body["id"])
	assert.Equal(t, "0x00000000000000000000000000000000000000bb", h.ops.transfer.Recipient)
	assert.True(t, decimal.RequireFromString("1.5").Equal(h.ops.transfer.AmountPOL))
}

func TestSend_AmountAsString(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodPost, "/send",
		`{"recipient_address":"0x00000000000000000000000000000000000000bb","amount_in_pol":"0.000000000000000001"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0.000000000000000001", h.ops.transfer.AmountPOL.String())
}

func TestPostRoutesDecodeBodies(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodPost, "/buy-pol", `{"amount_in_usd":10}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", h.ops.buy.AmountUSD.String())

	w, _ = h.do(t, http.MethodPost, "/sell-pol", `{"amount_in_pol":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", h.ops.sell.AmountPOL.String())

	w, _ = h.do(t, http.MethodPost, "/swap-pol", `{"token_out":"0x00000000000000000000000000000000000000cc","amount_in_pol":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0x00000000000000000000000000000000000000cc", h.ops.swap.TokenOut)

	w, _ = h.do(t, http.MethodPost, "/rebalance",
		`{"token_a":"0x00000000000000000000000000000000000000dd","token_b":"0x00000000000000000000000000000000000000ee","amount_a":1,"amount_b":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0x00000000000000000000000000000000000000dd", h.ops.rebalance.TokenA)
	assert.Equal(t, "2", h.ops.rebalance.AmountB.String())
}

func TestIdempotencyKeyHeaderOverridesBody(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodPost, "/sell-pol", `{"amount_in_pol":2,"idempotency_key":"body"}`, headerIdempotency, "header")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "header", h.ops.sell.IdempotencyKey)

	w, _ = h.do(t, http.MethodPost, "/sell-pol", `{"amount_in_pol":2,"idempotency_key":"body"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body", h.ops.sell.IdempotencyKey)
}

func TestReplayedFlag(t *testing.T) {
	h := newHarness(t)
	h.ops.res = &pipeline.Result{TxHash: "0xabc", Replayed: true, Executed: true}

	_, body := h.do(t, http.MethodPost, "/buy-pol", `{"amount_in_usd":10}`)
	assert.Equal(t, true, body["replayed"])
}

func TestInvalidJSON(t *testing.T) {
	h := newHarness(t)

	for _, body := range []string{``, `{`, `{"amount_in_pol":"abc"}`} {
		w, out := h.do(t, http.MethodPost, "/sell-pol", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
		assert.NotEmpty(t, out["error"])
	}
	assert.True(t, h.ops.sell.AmountPOL.IsZero(), "operation must not run")
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: amount_in_pol is required", domain.ErrValidation), http.StatusBadRequest},
		{"duplicate", domain.ErrDuplicateRequest, http.StatusConflict},
		{"not found", storage.ErrNotFound, http.StatusNotFound},
		{"timeout", fmt.Errorf("%w: 0xabc", domain.ErrTimeout), http.StatusGatewayTimeout},
		{"revert", &domain.RevertError{TxHash: "0xabc", Reason: "boom"}, http.StatusInternalServerError},
		{"chain", fmt.Errorf("%w: estimate gas", domain.ErrChain), http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ops.res, h.ops.err = nil, tt.err

			w, body := h.do(t, http.MethodPost, "/sell-pol", `{"amount_in_pol":1}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, tt.err.Error(), body["error"])
			assert.NotContains(t, body, "transaction_hash")
		})
	}
}

func TestErrorAfterBroadcastKeepsHash(t *testing.T) {
	h := newHarness(t)
	h.ops.res = &pipeline.Result{TxHash: "0xabc", Executed: true}
	h.ops.err = fmt.Errorf("%w: disk full", domain.ErrLogIO)

	w, body := h.do(t, http.MethodPost, "/send",
		`{"recipient_address":"0x00000000000000000000000000000000000000bb","amount_in_pol":1}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "0xabc", body["transaction_hash"])
	assert.Contains(t, body["error"], "disk full")
}

func TestAutoRebalance(t *testing.T) {
	body := `{"token_a":"0x00000000000000000000000000000000000000dd","token_b":"0x00000000000000000000000000000000000000ee","amount_a":1,"amount_b":2}`

	t.Run("not triggered", func(t *testing.T) {
		h := newHarness(t)
		h.ops.res = &pipeline.Result{Executed: false, Decision: &domain.RebalanceDecision{Buy: true}}

		w, out := h.do(t, http.MethodPost, "/auto-rebalance", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, out["rebalanced"])
		assert.NotContains(t, out, "transaction_hash")
		assert.Equal(t, map[string]any{"buy": true, "sell": false, "rebalance": false}, out["insights"])
	})

	t.Run("triggered", func(t *testing.T) {
		h := newHarness(t)
		h.ops.res = &pipeline.Result{TxHash: "0xfeed", Executed: true, Decision: &domain.RebalanceDecision{Rebalance: true}}

		w, out := h.do(t, http.MethodPost, "/auto-rebalance", body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, out["rebalanced"])
		assert.Equal(t, "0xfeed", out["transaction_hash"])
	})
}

func TestPrices(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodGet, "/get-pol-price", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.52, body["price"])

	w, body = h.do(t, http.MethodGet, "/get-dai-price", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.9999, body["price"])

	h.prices.err = fmt.Errorf("%w: feed down", domain.ErrOracle)
	w, body = h.do(t, http.MethodGet, "/get-pol-price", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "feed down")
}

func TestPriceHistory(t *testing.T) {
	h := newHarness(t)
	h.prices.samples = []*domain.PriceSample{{Feed: "0xfeed", Symbol: "DAI", Price: 1, Answer: 100000000, TimestampMs: 42}}

	w, body := h.do(t, http.MethodGet, "/price-history?feed=dai&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DAI", h.prices.symbol)
	assert.Equal(t, 5, h.prices.limit)
	samples := body["samples"].([]any)
	require.Len(t, samples, 1)
	assert.Equal(t, float64(42), samples[0].(map[string]any)["timestamp_ms"])

	w, _ = h.do(t, http.MethodGet, "/price-history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "POL", h.prices.symbol)
	assert.Equal(t, defaultHistoryLimit, h.prices.limit)

	w, _ = h.do(t, http.MethodGet, "/price-history?feed=btc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = h.do(t, http.MethodGet, "/price-history?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRebalanceInsights(t *testing.T) {
	h := newHarness(t)
	h.insights.decision = domain.RebalanceDecision{Sell: true}

	w, body := h.do(t, http.MethodGet, "/rebalance-insights", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"buy": false, "sell": true, "rebalance": false}, body)

	h.insights.err = fmt.Errorf("%w: line 3", domain.ErrLogParse)
	w, _ = h.do(t, http.MethodGet, "/rebalance-insights", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestLog(t *testing.T) {
	h := newHarness(t)
	h.activity.raw = "1700000000,1,0,transfer,0xbb\n"

	w, body := h.do(t, http.MethodGet, "/log", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1700000000,1,0,transfer,0xbb\n", body["log"])

	h.activity.err = fmt.Errorf("%w: permission denied", domain.ErrLogIO)
	w, _ = h.do(t, http.MethodGet, "/log", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTransactions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.records.Insert(ctx, &domain.TransactionRecord{
			ID:        id,
			Kind:      domain.KindTransfer,
			Status:    domain.TxStatusConfirmed,
			CreatedAt: int64(i + 1),
			UpdatedAt: int64(i + 1),
		}))
	}

	w, body := h.do(t, http.MethodGet, "/transactions?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	txs := body["transactions"].([]any)
	require.Len(t, txs, 2)
	assert.Equal(t, "c", txs[0].(map[string]any)["id"])

	w, body = h.do(t, http.MethodGet, "/transactions/b", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "confirmed", body["status"])

	w, _ = h.do(t, http.MethodGet, "/transactions/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = h.do(t, http.MethodGet, "/transactions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransactions_Empty(t *testing.T) {
	h := newHarness(t)

	w, body := h.do(t, http.MethodGet, "/transactions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["transactions"])
}

func TestHealthStatusMetrics(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w, body := h.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.EqualFold("0x00000000000000000000000000000000000000aa", body["wallet"].(string)))
	assert.Equal(t, float64(137), body["chain_id"])

	h.do(t, http.MethodGet, "/health", "")
	w, _ = h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pol_gateway_http_requests_total")
}

func TestRequestID(t *testing.T) {
	h := newHarness(t)

	w, _ := h.do(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(headerRequestID))

	w, _ = h.do(t, http.MethodGet, "/health", "", headerRequestID, "req-42")
	assert.Equal(t, "req-42", w.Header().Get(headerRequestID))
}
