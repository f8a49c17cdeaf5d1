package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache store metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"namespace", "result"}, // result: hit, miss
	)

	CacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_cache_sets_total",
			Help: "Total number of cache entries written",
		},
		[]string{"namespace"},
	)

	CacheDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "h1b_cache_deletes_total",
			Help: "Total number of cache entries deleted",
		},
	)

	CacheCleanupRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "h1b_cache_cleanup_removed_total",
			Help: "Total number of expired entries removed by cleanup sweeps",
		},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_cache_errors_total",
			Help: "Total number of cache storage errors",
		},
		[]string{"op"}, // op: init, get, set, delete, clear, cleanup, stats, decode
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "h1b_cache_entries",
			Help: "Number of live cache entries",
		},
	)

	CacheSizeBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "h1b_cache_size_bytes",
			Help: "Uncompressed size of live cache entries in bytes",
		},
	)

	CacheHitRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "h1b_cache_hit_rate_percent",
			Help: "Session cache hit rate in percent",
		},
	)

	// Query facade metrics
	QueryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_query_requests_total",
			Help: "Total number of facade operations",
		},
		[]string{"operation", "outcome"}, // outcome: hit, fetched, degraded, error
	)

	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "h1b_query_duration_seconds",
			Help:    "Duration of facade operations in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_source_errors_total",
			Help: "Total number of remote data source errors",
		},
		[]string{"operation", "class"}, // class: transient, not_provisioned
	)

	// Prefetch metrics
	PrefetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_prefetch_results_total",
			Help: "Prefetch target outcomes",
		},
		[]string{"result"}, // result: fetched, skipped, failed
	)

	// Live session metrics
	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "h1b_live_sessions",
			Help: "Number of connected live filter sessions",
		},
	)

	// Outbound HTTP metrics
	SourceHTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "h1b_source_http_requests_total",
			Help: "Total number of HTTP requests made to the remote data API",
		},
		[]string{"status"}, // status: success, retry, error
	)

	SourceHTTPRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "h1b_source_http_retries_total",
			Help: "Total number of HTTP request retries",
		},
	)

	SourceRetryAfterWaits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "h1b_source_retry_after_wait_seconds",
			Help:    "Duration of Retry-After waits in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Database metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	// Scheduler metrics
	SchedulerJobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduled job runs",
		},
		[]string{"job", "status"}, // status: success, failed
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduled jobs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"}, // global, ip
	)

	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"source"},
	)
)
