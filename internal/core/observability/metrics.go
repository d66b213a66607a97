package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream registry calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"registry"},
	)

	lookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadastral_lookups_total",
			Help: "Coordinate lookups by region and outcome.",
		},
		[]string{"region", "outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Cache results by outcome.",
		},
		[]string{"outcome"},
	)

	invalidatedKeysTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_invalidated_keys_total",
			Help: "Coordinate keys dropped by invalidation events.",
		},
	)

	invalidationApplySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "invalidation_apply_duration_seconds",
			Help:    "Time spent applying one invalidation message.",
			Buckets: prometheus.DefBuckets,
		},
	)

	consumerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_consumer_errors_total",
			Help: "Invalidation consumer errors by kind.",
		},
		[]string{"kind"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(registry string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(registry).Observe(durationSeconds)
}

// ObserveLookup records one coordinate lookup; outcome is one of
// empty, single, multiple, error.
func ObserveLookup(region, outcome string) {
	lookupsTotal.WithLabelValues(region, outcome).Inc()
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cacheOpDurationSeconds.WithLabelValues(op, result).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	cacheResults.WithLabelValues("hit").Add(float64(n))
}

func AddCacheMisses(n int) {
	cacheResults.WithLabelValues("miss").Add(float64(n))
}

func AddInvalidatedKeys(n int) {
	invalidatedKeysTotal.Add(float64(n))
}

func ObserveInvalidationApply(durationSeconds float64) {
	invalidationApplySeconds.Observe(durationSeconds)
}

func IncConsumerError(kind string) {
	consumerErrorsTotal.WithLabelValues(kind).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
