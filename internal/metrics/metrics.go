package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	ledgerOperations    *prometheus.CounterVec
	compensations       *prometheus.CounterVec
	reconciliation      prometheus.Counter
	webhooks            *prometheus.CounterVec
	confirmations       *prometheus.CounterVec
	balanceDrift        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bettabuckz_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})
	m.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bettabuckz_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
	m.ledgerOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bettabuckz_ledger_operations_total",
		Help: "Ledger mutations by kind and result",
	}, []string{"kind", "result"})
	m.compensations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bettabuckz_compensations_total",
		Help: "Compensating ledger writes by operation and outcome",
	}, []string{"operation", "outcome"})
	m.reconciliation = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bettabuckz_reconciliation_required_total",
		Help: "Operations that left the ledger needing manual reconciliation",
	})
	m.webhooks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bettabuckz_webhook_events_total",
		Help: "Payment provider webhook events by rail and result",
	}, []string{"rail", "result"})
	m.confirmations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bettabuckz_btc_watcher_events_total",
		Help: "Confirmation watcher events by type",
	}, []string{"event"})
	m.balanceDrift = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bettabuckz_balance_drift_accounts",
		Help: "Accounts whose stored balance differed from the ledger sum on the last reconciliation run",
	})
	m.registry.MustRegister(
		m.httpRequests,
		m.httpRequestDuration,
		m.ledgerOperations,
		m.compensations,
		m.reconciliation,
		m.webhooks,
		m.confirmations,
		m.balanceDrift,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) LedgerOperation(kind, result string) {
	if m == nil {
		return
	}
	m.ledgerOperations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Compensation(operation, outcome string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ReconciliationRequired() {
	if m == nil {
		return
	}
	m.reconciliation.Inc()
}

func (m *Metrics) Webhook(rail, result string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(rail, result).Inc()
}

func (m *Metrics) WatcherEvent(event string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(event).Inc()
}

func (m *Metrics) BalanceDrift(accounts int) {
	if m == nil {
		return
	}
	m.balanceDrift.Set(float64(accounts))
}

// Middleware records request counts and durations by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		m.httpRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
