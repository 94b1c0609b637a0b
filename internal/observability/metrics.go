package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	JournalsPosted    *prometheus.CounterVec
	StockMovements    *prometheus.CounterVec
	SequenceConflicts prometheus.Counter
	ValuationAlerts   prometheus.Counter
	IntegrityFailures prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "meridian_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	journals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_journals_posted_total",
		Help: "Journals created by source type.",
	}, []string{"source_type"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meridian_stock_movements_total",
		Help: "Stock ledger entries appended by direction.",
	}, []string{"direction"})
	seqConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_sequence_conflicts_total",
		Help: "Document sequence increments retried after a conflict.",
	})
	valuationAlerts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_valuation_alerts_total",
		Help: "Valuation layer exhaustion alerts raised.",
	})
	integrity := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meridian_ledger_integrity_failures_total",
		Help: "Tenants failing the ledger integrity scan.",
	})
	registry.MustRegister(requests, duration, journals, movements, seqConflicts, valuationAlerts, integrity)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		JournalsPosted:    journals,
		StockMovements:    movements,
		SequenceConflicts: seqConflicts,
		ValuationAlerts:   valuationAlerts,
		IntegrityFailures: integrity,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
