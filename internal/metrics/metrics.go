// Package metrics provides Prometheus instrumentation for the event engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsCreated counts events created, partitioned by visibility.
	EventsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foresight_events_created_total",
		Help: "Total number of events created",
	}, []string{"visibility"})

	// PredictionsAdmitted counts predictions persisted.
	PredictionsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foresight_predictions_admitted_total",
		Help: "Total number of predictions admitted",
	})

	// Rejections counts refused operations by kind and reason.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foresight_rejections_total",
		Help: "Operations rejected, by error kind and reason",
	}, []string{"kind", "reason"})

	// Settlements counts completed settlements, partitioned by result.
	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foresight_settlements_total",
		Help: "Total number of events settled",
	}, []string{"result"}) // "winner" or "refund"

	// SettlementLatency tracks the settlement unit of work end to end.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foresight_settlement_latency_seconds",
		Help:    "Settlement latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// StakeVolume accumulates admitted stake.
	StakeVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foresight_stake_volume_total",
		Help: "Cumulative stake admitted",
	})

	// PayoutVolume accumulates settled payouts.
	PayoutVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foresight_payout_volume_total",
		Help: "Cumulative payout assigned by settlement",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foresight_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foresight_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foresight_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps the path label low-cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
