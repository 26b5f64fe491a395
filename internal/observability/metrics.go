// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Transaction metrics
	TxSubmitted     *prometheus.CounterVec
	TxConfirmed     *prometheus.CounterVec
	TxFailed        *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	ConfirmLatency  prometheus.Histogram
	IdempotentHits  prometheus.Counter
	ActivityAppends *prometheus.CounterVec

	// Chain metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec
	HeadBlock      prometheus.Gauge

	// Oracle metrics
	OracleReads *prometheus.CounterVec
	LastPrice   *prometheus.GaugeVec

	// Scheduler metrics
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastConfirmedTx prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pol_gateway"
	}

	return &Metrics{
		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status code",
		}, []string{"route", "status"}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}, []string{"route"}),

		// Transaction metrics
		TxSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tx_submitted_total",
			Help:      "Total number of transactions accepted by the node",
		}, []string{"kind"}),
		TxConfirmed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tx_confirmed_total",
			Help:      "Total number of transactions mined with success status",
		}, []string{"kind"}),
		TxFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "tx_failed_total",
			Help:      "Total number of failed operations by kind and failing stage",
		}, []string{"kind", "stage"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		ConfirmLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "confirm_latency_seconds",
			Help:      "Time from submission to receipt in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		IdempotentHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "idempotent_replays_total",
			Help:      "Total number of requests answered from the idempotency cache",
		}),
		ActivityAppends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "activity",
			Name:      "appends_total",
			Help:      "Total number of activity log appends by status",
		}, []string{"status"}),

		// Chain metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "rpc_call_latency_seconds",
			Help:      "JSON-RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "rpc_call_errors_total",
			Help:      "Total number of failed JSON-RPC calls",
		}, []string{"method"}),
		HeadBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evm",
			Name:      "head_block",
			Help:      "Latest block number seen on the head subscription",
		}),

		// Oracle metrics
		OracleReads: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "reads_total",
			Help:      "Total number of price feed reads by symbol and status",
		}, []string{"symbol", "status"}),
		LastPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "last_price",
			Help:      "Last price read from the feed",
		}, []string{"symbol"}),

		// Scheduler metrics
		JobRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduled job runs by status",
		}, []string{"job", "status"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "duration_seconds",
			Help:      "Scheduled job duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastConfirmedTx: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_confirmed_tx_timestamp",
			Help:      "Unix timestamp of the last confirmed transaction",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordHTTPRequest records a served request.
func RecordHTTPRequest(route, status string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, status).Inc()
	DefaultMetrics.HTTPDuration.WithLabelValues(route).Observe(seconds)
}

// RecordStage records the duration of one pipeline stage.
func RecordStage(stage string, seconds float64) {
	DefaultMetrics.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordTxSubmitted increments the submitted counter.
func RecordTxSubmitted(kind string) {
	DefaultMetrics.TxSubmitted.WithLabelValues(kind).Inc()
}

// RecordTxConfirmed records a successful receipt.
func RecordTxConfirmed(kind string, confirmSeconds float64, unixTime int64) {
	DefaultMetrics.TxConfirmed.WithLabelValues(kind).Inc()
	DefaultMetrics.ConfirmLatency.Observe(confirmSeconds)
	DefaultMetrics.LastConfirmedTx.Set(float64(unixTime))
}

// RecordTxFailed records an operation that failed at stage.
func RecordTxFailed(kind, stage string) {
	DefaultMetrics.TxFailed.WithLabelValues(kind, stage).Inc()
}

// RecordIdempotentHit increments the idempotent replay counter.
func RecordIdempotentHit() {
	DefaultMetrics.IdempotentHits.Inc()
}

// RecordActivityAppend records an activity log append.
func RecordActivityAppend(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.ActivityAppends.WithLabelValues(status).Inc()
}

// RecordRPCCall records RPC call latency and failures.
func RecordRPCCall(method string, seconds float64, err error) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
	if err != nil {
		DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// UpdateHeadBlock updates the head block gauge.
func UpdateHeadBlock(number uint64) {
	DefaultMetrics.HeadBlock.Set(float64(number))
}

// RecordOracleRead records a price feed read.
func RecordOracleRead(symbol string, price float64, err error) {
	if err != nil {
		DefaultMetrics.OracleReads.WithLabelValues(symbol, "error").Inc()
		return
	}
	DefaultMetrics.OracleReads.WithLabelValues(symbol, "success").Inc()
	DefaultMetrics.LastPrice.WithLabelValues(symbol).Set(price)
}

// RecordJobRun records a scheduled job run.
func RecordJobRun(job, status string, durationSeconds float64) {
	DefaultMetrics.JobRuns.WithLabelValues(job, status).Inc()
	DefaultMetrics.JobDuration.WithLabelValues(job).Observe(durationSeconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
