package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quotaward/quotaward/internal/errors"
	"github.com/quotaward/quotaward/internal/metrics"
	"github.com/quotaward/quotaward/internal/observability"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// fakeExporter points the metrics proxy at a canned exporter response.
func fakeExporter(t *testing.T, body string) {
	t.Helper()

	originalClient := metricsProxyClient
	metricsProxyClient = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			resp := &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(body)),
				Header:     make(http.Header),
			}
			resp.Header.Set("Content-Type", "text/plain; version=0.0.4")
			resp.Header.Set("Connection", "close")
			return resp, nil
		}),
	}
	observability.PrometheusExporter = exporters.NewPrometheusExporter("quotaward", ":9090")

	t.Cleanup(func() {
		metricsProxyClient = originalClient
		observability.PrometheusExporter = nil
	})
}

func TestMetricsEndpointProxiesQuotaSeries(t *testing.T) {
	fakeExporter(t, "# TYPE quotaward_quota_decisions_total counter\n"+
		`quotaward_quota_decisions_total{outcome="rejected",scope="endpoint"} 11`+"\n")

	srv := New("127.0.0.1", 0, Dependencies{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Empty(t, rec.Header().Get("Connection"))
	assert.Contains(t, rec.Body.String(), `quotaward_quota_decisions_total{outcome="rejected",scope="endpoint"} 11`)
}

func TestMetricsEndpointRefreshesGatewayGauges(t *testing.T) {
	fakeExporter(t, "")
	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)
	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = original })

	srv := New("127.0.0.1", 0, Dependencies{})
	srv.started = time.Now().Add(-90 * time.Second)
	srv.conns.Store(3)

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	uptime := collector.GetMetricsByName(metrics.ServerUptime)
	require.Len(t, uptime, 1)
	assert.GreaterOrEqual(t, uptime[0].Value, float64(90))

	conns := collector.GetMetricsByName(metrics.OpenConnections)
	require.Len(t, conns, 1)
	assert.Equal(t, float64(3), conns[0].Value)
}

func TestMetricsEndpointWithoutExporterIs503(t *testing.T) {
	observability.PrometheusExporter = nil

	srv := New("127.0.0.1", 0, Dependencies{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeServiceUnavailable, body.Error.Code)
}
