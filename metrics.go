package renteasy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle,
// cache and token refresh. It is safe for concurrent use; all methods accept
// a nil receiver so call sites need no guards.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	dedupShared *prometheus.CounterVec

	tokenRefreshTotal *prometheus.CounterVec

	rateLimiterTokens prometheus.Gauge

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, which keeps tests isolated from the global registry.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "renteasy_client_requests_total",
				Help: "Total number of API requests made",
			},
			[]string{"method", "status_code", "path"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "renteasy_client_request_duration_seconds",
				Help:    "Duration of API requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "path"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "renteasy_client_requests_in_flight",
				Help: "Number of API requests currently in flight",
			},
			[]string{"method", "path"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "renteasy_client_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "path", "attempt"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "renteasy_client_cache_hits_total",
				Help: "Total number of response cache hits",
			},
			[]string{"method", "path"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "renteasy_client_cache_misses_total",
				Help: "Total number of response cache misses",
			},
			[]string{"method", "path"},
		),
		cacheSize: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "renteasy_client_cache_entries",
				Help: "Current number of entries in the response cache",
			},
		),
		dedupShared: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "renteasy_client_dedup_shared_total",
				Help: "Total number of requests that joined an in-flight fetch",
			},
			[]string{"method", "path"},
		),
		tokenRefreshTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "renteasy_client_token_refresh_total",
				Help: "Total number of token refresh operations by result",
			},
			[]string{"result"},
		),
		rateLimiterTokens: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "renteasy_client_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "renteasy_client_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"kind", "method", "path"},
		),
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, status, path).Inc()
	mc.requestDuration.WithLabelValues(method, status, path).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, path string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, path).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, path string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, path).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, path string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, path, strconv.Itoa(attempt)).Inc()
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, path string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, path).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, path string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, path).Inc()
}

// RecordCacheSize sets the cache entry gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.Set(float64(size))
}

// RecordDedupShared increments the counter of requests that piggybacked on
// an in-flight fetch instead of issuing their own.
func (mc *MetricsCollector) RecordDedupShared(method, path string) {
	if mc == nil {
		return
	}
	mc.dedupShared.WithLabelValues(method, path).Inc()
}

// RecordTokenRefresh increments the refresh counter with result "success"
// or "failure".
func (mc *MetricsCollector) RecordTokenRefresh(result string) {
	if mc == nil {
		return
	}
	mc.tokenRefreshTotal.WithLabelValues(result).Inc()
}

// RecordRateLimiterTokens sets the available-token gauge.
func (mc *MetricsCollector) RecordRateLimiterTokens(tokens int) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.Set(float64(tokens))
}

// RecordError increments the error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, method, path string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(string(kind), method, path).Inc()
}
