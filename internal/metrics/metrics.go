// Package metrics provides Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	verifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_verify_total",
			Help: "Verification attempts by answering provider and outcome",
		},
		[]string{"via", "outcome"},
	)

	providerSkipTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "indexer_provider_skip_total",
			Help: "Providers skipped during fallback, by reason",
		},
		[]string{"provider", "reason"},
	)

	auditRecordTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_record_total",
			Help: "Audit sink writes by sink and status",
		},
		[]string{"sink", "status"},
	)

	priceCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_total",
			Help: "Price oracle cache lookups by result",
		},
		[]string{"result"},
	)
)

// Verify records a verification outcome ("verified", "not_verified", "failed").
func Verify(via, outcome string) {
	verifyTotal.WithLabelValues(via, outcome).Inc()
}

// ProviderSkip records a provider skipped during fallback
// ("unsupported" or "transport").
func ProviderSkip(provider, reason string) {
	providerSkipTotal.WithLabelValues(provider, reason).Inc()
}

// AuditRecord records an audit sink write ("ok" or "error").
func AuditRecord(sink, status string) {
	auditRecordTotal.WithLabelValues(sink, status).Inc()
}

// PriceCache records a price cache lookup ("hit", "refresh", "error").
func PriceCache(result string) {
	priceCacheTotal.WithLabelValues(result).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments HTTP requests.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
