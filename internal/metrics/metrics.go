package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rate limiting metrics
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seccore_rate_limit_denials_total",
			Help: "Total number of denied rate-limit checks",
		},
		[]string{"action"},
	)

	RateLimitAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seccore_rate_limit_attempts_total",
			Help: "Total number of recorded attempts",
		},
		[]string{"action"},
	)

	// Audit metrics
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seccore_audit_events_total",
			Help: "Total number of audit events written",
		},
		[]string{"action"},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seccore_audit_write_failures_total",
			Help: "Total number of audit events dropped on store failure",
		},
	)

	// Session metrics
	SessionsRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seccore_sessions_revoked_total",
			Help: "Total number of sessions revoked",
		},
	)

	// Cleanup metrics
	CleanupDeletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seccore_cleanup_deletions_total",
			Help: "Total number of records removed by the cleanup sweep",
		},
		[]string{"collection"},
	)
)
