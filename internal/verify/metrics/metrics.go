package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChecksProcessed tracks completed checks by kind and outcome.
	ChecksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardcheck_checks_processed_total",
			Help: "Total number of completed verification checks",
		},
		[]string{"kind", "outcome"},
	)

	// ProviderCallsTotal tracks calls to the external data provider.
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardcheck_provider_calls_total",
			Help: "Total number of provider calls",
		},
		[]string{"endpoint"},
	)

	// ProviderErrorsTotal tracks provider failures by error kind.
	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardcheck_provider_errors_total",
			Help: "Total number of provider errors",
		},
		[]string{"endpoint", "error_kind"},
	)

	// ProviderLatency tracks provider call latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boardcheck_provider_latency_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// QueueDepth tracks pending checks.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardcheck_queue_depth",
			Help: "Number of pending check requests",
		},
	)

	// QueueInFlight tracks checks currently being executed.
	QueueInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boardcheck_queue_in_flight",
			Help: "Number of check requests in flight",
		},
	)

	// QueueEvictions tracks rescan requests dropped on overflow.
	QueueEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardcheck_queue_evictions_total",
			Help: "Total number of rescan checks evicted on queue overflow",
		},
	)

	// Transitions tracks status state transitions.
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardcheck_status_transitions_total",
			Help: "Total number of requirement status transitions",
		},
		[]string{"from", "to"},
	)

	// NotificationsSent tracks delivered notifications.
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardcheck_notifications_sent_total",
			Help: "Total number of notifications delivered",
		},
		[]string{"state"},
	)

	// MatchesOffered tracks emitted match offers.
	MatchesOffered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boardcheck_matches_offered_total",
			Help: "Total number of match offers emitted",
		},
		[]string{"kind"},
	)

	// RateLimiterHolds tracks global limiter holds caused by provider 429s.
	RateLimiterHolds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boardcheck_rate_limiter_holds_total",
			Help: "Total number of global rate limiter holds",
		},
	)
)
