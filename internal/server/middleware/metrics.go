package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/quotaward/quotaward/internal/core/engine"
	"github.com/quotaward/quotaward/internal/observability"
	"go.uber.org/zap"
)

const quotaStatusPath = "/api/v1/quota/status"

// responseWriter wraps http.ResponseWriter to capture status code and response size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}

// requestLog collects fields set by inner middleware for the completion log.
type requestLog struct {
	identity  string
	tier      string
	rejection string
	failOpen  bool
}

type requestLogContextKey struct{}

func annotateQuota(ctx context.Context, out engine.Outcome) {
	entry, ok := ctx.Value(requestLogContextKey{}).(*requestLog)
	if !ok {
		return
	}
	entry.identity = out.Identity.ID
	entry.tier = string(out.Identity.Tier)
	switch rej := out.Rejection.(type) {
	case engine.Blocked:
		entry.rejection = "blocked"
	case engine.RateLimited:
		entry.rejection = rej.Type
	}
	for _, c := range out.Checks {
		if c.Decision.Failed {
			entry.failOpen = true
		}
	}
}

func (l *requestLog) fields() []zap.Field {
	if l.identity == "" {
		return nil
	}
	fields := []zap.Field{
		zap.String("identity", l.identity),
		zap.String("tier", l.tier),
	}
	if l.rejection != "" {
		fields = append(fields, zap.String("quota_rejection", l.rejection))
	}
	if l.failOpen {
		fields = append(fields, zap.Bool("quota_fail_open", true))
	}
	return fields
}

// RoutePattern returns a bounded label for r: the chi route pattern when the
// router matched one, otherwise a coarse bucket. Proxied paths are arbitrary,
// so anything under /api/ collapses to /api/*.
func RoutePattern(r *http.Request) string {
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}

	path := r.URL.Path
	switch {
	case path == "/health" || strings.HasPrefix(path, "/health/"):
		return "/health/*"
	case path == "/version", path == "/metrics", path == "/", path == quotaStatusPath:
		return path
	case strings.HasPrefix(path, "/admin/"):
		return "/admin/*"
	case strings.HasPrefix(path, "/api/"):
		return "/api/*"
	default:
		return "/unknown"
	}
}

// RequestMetrics captures HTTP request metrics following Prometheus standards
// and logs each completed request, including the quota identity when the
// request passed through Quota.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		entry := &requestLog{}
		r = r.WithContext(context.WithValue(r.Context(), requestLogContextKey{}, entry))
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		// Get request size from Content-Length header
		requestSize := int64(0)
		if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
			if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
				requestSize = size
			}
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := RoutePattern(r)
		if observability.TelemetrySystem != nil {
			emitRequestMetrics(r, endpoint, wrapped, duration, requestSize)
		}

		requestID := GetRequestID(r.Context())
		if observability.ServerLogger != nil {
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("endpoint", endpoint),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", duration),
				zap.Int64("request_size", requestSize),
				zap.Int64("response_size", wrapped.bytesWritten),
				zap.String("requestID", requestID),
			}
			observability.ServerLogger.Info("HTTP request completed", append(fields, entry.fields()...)...)
		}
	})
}

func emitRequestMetrics(r *http.Request, endpoint string, wrapped *responseWriter, duration time.Duration, requestSize int64) {
	// Common labels for all metrics (avoid high cardinality)
	commonLabels := map[string]string{
		"method":   r.Method,
		"endpoint": endpoint,
		"status":   strconv.Itoa(wrapped.statusCode),
	}

	// Emit request counter
	_ = observability.TelemetrySystem.Counter(
		"http_requests_total",
		1,
		commonLabels,
	)

	// Emit duration histogram in milliseconds (keep gofulmen standard)
	_ = observability.TelemetrySystem.Histogram(
		"http_request_duration_ms",
		duration,
		commonLabels,
	)

	// Emit request size as gauge (not histogram since it's a single value)
	_ = observability.TelemetrySystem.Gauge(
		"http_request_size_bytes",
		float64(requestSize),
		map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		},
	)

	// Emit response size as gauge (not histogram since it's a single value)
	_ = observability.TelemetrySystem.Gauge(
		"http_response_size_bytes",
		float64(wrapped.bytesWritten),
		map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		},
	)

	// Emit error counter for non-2xx responses
	if wrapped.statusCode >= 400 {
		errorType := "client_error" // 4xx
		if wrapped.statusCode >= 500 {
			errorType = "server_error" // 5xx
		}

		_ = observability.TelemetrySystem.Counter(
			"http_errors_total",
			1,
			map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     strconv.Itoa(wrapped.statusCode),
				"error_type": errorType,
			},
		)
	}
}
