package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Number of active HTTP connections",
		},
	)

	leadSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_submissions_total",
			Help: "Contact form submissions by outcome",
		},
		[]string{"outcome"},
	)

	crmSyncResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_sync_results_total",
			Help: "HubSpot sync outcomes by terminal status",
		},
		[]string{"status"},
	)

	rateLimitBackendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_backend_errors_total",
			Help: "Rate-limit backend failures; while this grows, limiting is failing open",
		},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		activeConnections.Inc()
		defer activeConnections.Dec()

		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// RecordLeadSubmission counts one submission outcome: accepted, honeypot,
// invalid, rate_limited, or error.
func RecordLeadSubmission(outcome string) {
	leadSubmissions.WithLabelValues(outcome).Inc()
}

// RecordCRMSync counts one terminal sync status (synced or needs_sync).
func RecordCRMSync(status string) {
	crmSyncResults.WithLabelValues(status).Inc()
}

// RecordRateLimitBackendError counts a limiter backend failure. Submissions
// are allowed through on this path, so the counter is the alerting signal
// that abuse limiting is degraded.
func RecordRateLimitBackendError() {
	rateLimitBackendErrors.Inc()
}
