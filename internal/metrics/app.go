package metrics

import (
	"time"

	"github.com/quotaward/quotaward/internal/observability"
)

// Gateway process metrics
const (
	AdminOperationsTotal = "gateway_admin_operations_total"
	OpenConnections      = "gateway_open_connections"
	HealthCheckTotal     = "gateway_health_check_total"
	HealthCheckDuration  = "gateway_health_check_duration_ms"
	ServerStartTime      = "gateway_server_start_time_seconds"
	ServerUptime         = "gateway_server_uptime_seconds"
)

// RecordAdminOperation counts an admin endpoint invocation.
func RecordAdminOperation(operation string, success bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	_ = observability.TelemetrySystem.Counter(
		AdminOperationsTotal,
		1,
		map[string]string{
			"operation": operation,
			"status":    status,
		},
	)
}

// SetOpenConnections reports the number of client connections the gateway holds.
func SetOpenConnections(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(OpenConnections, float64(count), nil)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(
		HealthCheckTotal,
		1,
		map[string]string{
			"check":  checkName,
			"status": status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		HealthCheckDuration,
		duration,
		map[string]string{"check": checkName},
	)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerUptime, float64(seconds), nil)
	}
}
