// Package telemetry provides application-level observability for the Assessment API.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<ASSESS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. It is NOT served by the Gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /sessions/:token/complete)
// rather than the raw request URL. Session tokens must never become label values.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/assessment-platform/assessment-api/internal/safego"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Error rate (%):  sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency:     histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Session lifecycle metrics.
//
// SessionsCompletedTotal carries {strategy, status} where status is "completed" or
// "already_completed", so repeat completions are visible separately.
//
// Example PromQL queries:
//   - Completion ratio:  sum(rate(assessment_sessions_completed_total{status="completed"}[1h])) / sum(rate(assessment_sessions_created_total[1h]))
var (
	SessionsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_sessions_created_total",
			Help: "Total number of assessment sessions created.",
		},
	)

	SessionsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_sessions_completed_total",
			Help: "Total number of completion calls that returned a result, by strategy and status.",
		},
		[]string{"strategy", "status"},
	)

	ResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_responses_total",
			Help: "Total number of response submissions, by result (stored, duplicate, rejected).",
		},
		[]string{"result"},
	)

	SessionsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_sessions_swept_total",
			Help: "Total number of sessions deactivated by the sweeper after the recovery grace window.",
		},
	)

	ScoringDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assessment_scoring_duration_seconds",
			Help:    "Duration of one scoring run, by strategy.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
		[]string{"strategy"},
	)
)

// Gate, usage and delivery metrics.
//
// RateLimitRejectionsTotal carries {scope}: "api_key" for the per-key budget,
// "ip" for the pre-auth guard and "quota" for the monthly session quota.
//
// Example PromQL queries:
//   - Alert on webhook failures:  increase(assessment_webhook_deliveries_total{result="failure"}[30m]) > 10
var (
	RateLimitRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_rate_limit_rejections_total",
			Help: "Total number of requests rejected by a rate limit, by scope.",
		},
		[]string{"scope"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_webhook_deliveries_total",
			Help: "Total number of completion webhook attempts, by result (success, failure).",
		},
		[]string{"result"},
	)

	UsageLogFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assessment_usage_log_failures_total",
			Help: "Total number of usage log rows that could not be written.",
		},
	)

	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assessment_archive_uploads_total",
			Help: "Total number of result snapshot uploads, by result (success, failure).",
		},
		[]string{"result"},
	)
)

// DBOpenConnections is a Gauge that tracks the number of open connections currently
// held by the sql.DB connection pool. It is sampled every 30 seconds by
// StartDBStatsCollector rather than per-request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB connection
// pool statistics every 30 seconds and updates the DBOpenConnections gauge.
// The goroutine exits when the database becomes unreachable, which happens when the
// application shuts down and closes the pool.
func StartDBStatsCollector(db *sql.DB) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
