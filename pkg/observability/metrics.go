package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Protocol metrics
	ProtocolOperationsTotal   *prometheus.CounterVec
	ProtocolOperationDuration *prometheus.HistogramVec

	// Session store metrics
	SessionStoreErrorsTotal *prometheus.CounterVec

	// Business metrics
	SessionsAttached      prometheus.Counter
	SessionsAuthenticated prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gosso_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gosso_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		ProtocolOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gosso_protocol_operations_total",
				Help: "Total number of SSO protocol operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		ProtocolOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gosso_protocol_operation_duration_seconds",
				Help:    "SSO protocol operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		SessionStoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gosso_session_store_errors_total",
				Help: "Total number of session store failures",
			},
			[]string{"operation"},
		),
		SessionsAttached: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gosso_sessions_attached_total",
				Help: "Total number of broker sessions attached",
			},
		),
		SessionsAuthenticated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gosso_sessions_authenticated_total",
				Help: "Total number of broker sessions that reached the authenticated state",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProtocolOperationsTotal,
		m.ProtocolOperationDuration,
		m.SessionStoreErrorsTotal,
		m.SessionsAttached,
		m.SessionsAuthenticated,
	)

	return m
}

// ObserveOperation records one protocol operation with its outcome
// ("success" or an error code) and duration.
func (m *Metrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProtocolOperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.ProtocolOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
