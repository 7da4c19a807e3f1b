package metrics

import (
	"time"

	"github.com/quotaward/quotaward/internal/observability"
)

// Quota metric names
const (
	QuotaDecisionsTotal     = "quota_decisions_total"
	QuotaFailOpenTotal      = "quota_fail_open_total"
	QuotaCheckDuration      = "quota_check_duration_ms"
	QuotaCleanupDeleted     = "quota_cleanup_deleted_total"
	QuotaBlockedTotal       = "quota_blocked_total"
	QuotaCleanupRunsTotal   = "quota_cleanup_runs_total"
	QuotaStatusQueriesTotal = "quota_status_queries_total"
)

// RecordDecision counts one counter check outcome ("allowed" or "rejected").
func RecordDecision(scope string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			QuotaDecisionsTotal,
			1,
			map[string]string{
				"scope":   scope,
				"outcome": outcome,
			},
		)
	}
}

// RecordBlocked counts a request denied by a blocked endpoint.
func RecordBlocked(tier string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			QuotaBlockedTotal,
			1,
			map[string]string{"tier": tier},
		)
	}
}

// RecordFailOpen counts a check admitted because the counter store failed.
func RecordFailOpen(scope string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			QuotaFailOpenTotal,
			1,
			map[string]string{"scope": scope},
		)
	}
}

// RecordCheckDuration records counter store latency for one check.
func RecordCheckDuration(backend string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			QuotaCheckDuration,
			duration,
			map[string]string{"backend": backend},
		)
	}
}

// RecordCleanup records one garbage collection batch.
func RecordCleanup(deleted int, success bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(
		QuotaCleanupRunsTotal,
		1,
		map[string]string{"status": status},
	)
	if deleted > 0 {
		_ = observability.TelemetrySystem.Counter(
			QuotaCleanupDeleted,
			float64(deleted),
			nil,
		)
	}
}

// RecordStatusQuery counts a usage report lookup.
func RecordStatusQuery(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			QuotaStatusQueriesTotal,
			1,
			map[string]string{"status": status},
		)
	}
}
