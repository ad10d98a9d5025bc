package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's prometheus collectors. Constructed once with a
// private registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	GuardrailBreaches *prometheus.CounterVec
	QueriesBlocked    prometheus.Counter
	RateLimited       prometheus.Counter
}

// NewMetrics registers all gateway collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		GuardrailBreaches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_guardrail_breaches_total",
				Help: "Guarded queries aborted by a guardrail.",
			},
			[]string{"reason"},
		),
		QueriesBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queries_blocked_total",
			Help: "SQL statements rejected by the read-only validator.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "requests_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}),
	}
	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.GuardrailBreaches,
		m.QueriesBlocked,
		m.RateLimited,
	)
	return m
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument measures request counts, latency and in-flight totals.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)
		path := CanonicalPath(r.URL.Path)

		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.httpInFlight.Dec()
	})
}

// CanonicalPath collapses per-resource path segments so metric label
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	// /v1/schema/tables/<name> -> /v1/schema/tables/:name
	if len(parts) == 5 && parts[1] == "v1" && parts[2] == "schema" && parts[3] == "tables" && parts[4] != "" {
		parts[4] = ":name"
		return strings.Join(parts, "/")
	}
	return path
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
