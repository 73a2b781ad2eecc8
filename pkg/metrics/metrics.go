package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure|unverified).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teacherrate_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// Registrations counts account registrations by result (created|duplicate|invalid|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teacherrate_registrations_total",
			Help: "Total number of registration attempts",
		},
		[]string{"result"},
	)

	// RatingMutations counts rating writes by operation (create|upsert|update|delete).
	RatingMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teacherrate_rating_mutations_total",
			Help: "Total number of rating mutations",
		},
		[]string{"operation"},
	)

	// AggregateRecomputes counts teacher average recalculations by trigger (mutation|reconcile).
	AggregateRecomputes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teacherrate_aggregate_recomputes_total",
			Help: "Total number of teacher average recalculations",
		},
		[]string{"trigger"},
	)

	// CacheLookups counts teacher read-cache lookups by result (hit|miss|error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teacherrate_cache_lookups_total",
			Help: "Total number of teacher cache lookups",
		},
		[]string{"result"},
	)

	// RateLimited counts requests rejected by the limiter, by route.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teacherrate_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	// RequestsInFlight tracks requests currently being served.
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "teacherrate_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teacherrate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
