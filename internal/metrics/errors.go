package metrics

import (
	"strconv"

	"github.com/quotaward/quotaward/internal/observability"
)

// Error metric names
const (
	ErrorsTotalName        = "errors_total"
	PanicsTotalName        = "panics_total"
	StorageErrorsTotalName = "quota_storage_errors_total"
)

// RecordError counts an error response. route is the matched route pattern;
// raw request paths would give /api/* an unbounded label set.
func RecordError(errorCode string, httpStatus int, route string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		ErrorsTotalName,
		1,
		map[string]string{
			"error_code":  errorCode,
			"http_status": strconv.Itoa(httpStatus),
			"route":       route,
		},
	)
}

// RecordPanic counts a panic recovered while serving route.
func RecordPanic(route string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		PanicsTotalName,
		1,
		map[string]string{"route": route},
	)
}

// RecordStorageError counts a counter store failure surfaced to a caller
// (status queries, admin cleanup). Checks that failed open go to
// RecordFailOpen instead.
func RecordStorageError(op string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		StorageErrorsTotalName,
		1,
		map[string]string{"op": op},
	)
}
