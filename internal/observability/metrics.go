package observability

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// DefaultMetricsPort is where the gateway looks for the exporter when the
// bound port is unknown.
const DefaultMetricsPort = 9090

var (
	// TelemetrySystem receives every quota, HTTP and gateway metric. Nil
	// disables emission.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the collected series for scraping.
	PrometheusExporter *exporters.PrometheusExporter

	metricsMu   sync.Mutex
	metricsPort int
)

// InitMetrics starts a Prometheus exporter on port (0 picks a free one) and
// routes telemetry to it. Series are prefixed with namespace when given,
// otherwise with serviceName.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	if PrometheusExporter != nil {
		return fmt.Errorf("metrics already initialized on port %d", metricsPort)
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid metrics port %d", port)
	}

	prefix := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		prefix = namespace[0]
	}

	exporter := exporters.NewPrometheusExporter(prefix, fmt.Sprintf(":%d", port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start metrics exporter: %w", err)
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return fmt.Errorf("create telemetry system: %w", err)
	}

	bound, err := resolvePort(exporter.GetAddr())
	switch {
	case err == nil:
		metricsPort = bound
	case port != 0:
		metricsPort = port
	default:
		metricsPort = DefaultMetricsPort
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// GetMetricsPort returns the exporter's bound port, or 0 before InitMetrics.
func GetMetricsPort() int {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	return metricsPort
}

// ShutdownMetrics stops the exporter and disables emission. Safe to call
// without InitMetrics.
func ShutdownMetrics() error {
	metricsMu.Lock()
	defer metricsMu.Unlock()

	if PrometheusExporter == nil {
		return nil
	}
	err := PrometheusExporter.Stop()
	PrometheusExporter = nil
	TelemetrySystem = nil
	metricsPort = 0
	return err
}

func resolvePort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
