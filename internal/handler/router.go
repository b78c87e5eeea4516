package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantumbands/exchange/internal/metrics"
	"github.com/quantumbands/exchange/internal/service"
)

// NewRouter creates a chi router with all routes registered, request
// logging, metrics instrumentation and Content-Type validation middleware.
func NewRouter(
	exchangeSvc *service.ExchangeService,
	marketSvc *service.MarketService,
	offeringSvc *service.OfferingService,
	settlementSvc *service.SettlementService,
	feedSvc *service.FeedService,
	m *metrics.Metrics,
	logger zerolog.Logger,
) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(m.Middleware)
	r.Use(contentTypeJSON)

	// Create handlers.
	orderH := NewOrderHandler(exchangeSvc)
	marketH := NewMarketHandler(marketSvc)
	adminH := NewAdminHandler(offeringSvc, settlementSvc)
	feedH := NewFeedHandler(feedSvc)

	// Health check and metrics.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// Order routes.
	r.Post("/orders", orderH.SubmitOrder)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	// User routes.
	r.Get("/users/{user_id}/orders", orderH.ListOrders)
	r.Get("/users/{user_id}/trades", orderH.ListTrades)
	r.Get("/users/{user_id}/portfolio", marketH.GetPortfolio)
	r.Get("/users/{user_id}/wallet", marketH.GetWallet)

	// Market routes.
	r.Get("/accounts/{account_id}/book", marketH.GetBook)
	r.Get("/market-data", marketH.GetMarketData)

	// Admin routes.
	r.Post("/admin/offerings", adminH.CreateOffering)
	r.Delete("/admin/offerings/{offering_id}", adminH.CancelOffering)
	r.Post("/admin/snapshots", adminH.TriggerSnapshots)
	r.Get("/admin/snapshots/status", adminH.SnapshotStatus)
	r.Get("/admin/accounts/{account_id}/snapshots", adminH.SnapshotHistory)
	r.Post("/admin/accounts/{account_id}/recalculate", adminH.Recalculate)

	// Market-data feed routes.
	r.Post("/feed/closed-trades", feedH.ClosedTrades)
	r.Post("/feed/positions", feedH.Positions)
	r.Post("/feed/equity", feedH.Equity)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration.
func requestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT,
// and PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
