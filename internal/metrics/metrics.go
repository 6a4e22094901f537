// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewinn_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reviewinn_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Websocket
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewinn_ws_connections",
			Help: "Open websocket connections",
		},
		[]string{"channel"}, // "messenger", "notifications"
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewinn_ws_messages_dropped_total",
			Help: "Outbound frames dropped because a client queue was full",
		},
	)

	// View tracking
	Views = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewinn_views_total",
			Help: "View tracking outcomes",
		},
		[]string{"content_type", "reason"},
	)

	// Notifications
	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewinn_notifications_created_total",
			Help: "Notifications persisted, by type",
		},
		[]string{"type"},
	)

	NotificationsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewinn_notifications_delivered_total",
			Help: "Notifications pushed to an online recipient",
		},
	)

	NotificationsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reviewinn_notifications_expired_total",
			Help: "Notifications moved to expired by the cleanup job",
		},
	)

	// Engagement counters
	CounterHealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reviewinn_counter_health_score",
			Help: "Health score of the last counter consistency report (0-100)",
		},
	)

	CounterRowsRepaired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewinn_counter_rows_repaired_total",
			Help: "Denormalized counter rows rewritten by repair",
		},
		[]string{"kind"},
	)

	// Category cache
	CategoryCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewinn_category_cache_requests_total",
			Help: "Category read cache lookups",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reviewinn_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewinn_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Background jobs
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reviewinn_job_runs_total",
			Help: "Background job runs by outcome",
		},
		[]string{"job", "outcome"},
	)
)

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordJob records a background job run.
func RecordJob(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	JobRuns.WithLabelValues(job, outcome).Inc()
}
