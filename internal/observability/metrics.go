package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and ledger counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	movementsTotal  *prometheus.CounterVec
	movementUnits   *prometheus.CounterVec
	conflictsTotal  *prometheus.CounterVec
	txRetriesTotal  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_movements_total",
		Help: "Ledger entries posted by movement type.",
	}, []string{"movement_type"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_movement_units_total",
		Help: "Absolute quantity moved by movement type.",
	}, []string{"movement_type"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_rejections_total",
		Help: "Rejected document transitions by reason.",
	}, []string{"reason"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_tx_retries_total",
		Help: "Transactions re-run after a retryable storage conflict.",
	})
	registry.MustRegister(requests, duration, movements, units, conflicts, retries)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		movementsTotal:  movements,
		movementUnits:   units,
		conflictsTotal:  conflicts,
		txRetriesTotal:  retries,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) RecordMovement(movementType string, quantityChange int) {
	if m == nil {
		return
	}
	if quantityChange < 0 {
		quantityChange = -quantityChange
	}
	m.movementsTotal.WithLabelValues(movementType).Inc()
	m.movementUnits.WithLabelValues(movementType).Add(float64(quantityChange))
}

func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordTxRetry() {
	if m == nil {
		return
	}
	m.txRetriesTotal.Inc()
}

func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
