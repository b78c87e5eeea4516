// Package metrics exposes the exchange's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the exchange registers.
type Metrics struct {
	registry *prometheus.Registry

	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  prometheus.Counter
	OrdersCancelled prometheus.Counter
	TradesExecuted  prometheus.Counter
	SharesTraded    prometheus.Counter
	SnapshotRuns    *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates a Metrics with a private registry so tests can instantiate
// it repeatedly without duplicate-registration panics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		OrdersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_orders_submitted_total",
			Help: "Orders accepted by the matching engine.",
		}, []string{"side", "type"}),
		OrdersRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_orders_rejected_total",
			Help: "Orders rejected before any mutation.",
		}),
		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_orders_cancelled_total",
			Help: "Orders cancelled by their owner or an admin.",
		}),
		TradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_trades_executed_total",
			Help: "Trades settled by the matching engine.",
		}),
		SharesTraded: factory.NewCounter(prometheus.CounterOpts{
			Name: "exchange_shares_traded_total",
			Help: "Total share quantity traded.",
		}),
		SnapshotRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_snapshot_accounts_total",
			Help: "Per-account settlement outcomes.",
		}, []string{"result"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exchange_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// Handler returns the /metrics endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments every request with a count and latency observation.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
