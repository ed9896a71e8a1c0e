package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func gatherNames(t *testing.T, registry *prometheus.Registry) map[string]struct{} {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	names := make(map[string]struct{}, len(families))
	for _, family := range families {
		names[family.GetName()] = struct{}{}
	}
	return names
}

func TestPrometheusMetricsRegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	metrics.ObserveRequest("/servers", "200", 25*time.Millisecond)
	metrics.ObserveToolCall("petstore", "success")
	metrics.SetMountedServers(2)

	names := gatherNames(t, registry)
	require.Contains(t, names, "swaggerd_request_duration_seconds")
	require.Contains(t, names, "swaggerd_tool_calls_total")
	require.Contains(t, names, "swaggerd_mounted_servers")
}

func TestNoopMetricsIsSafe(t *testing.T) {
	metrics := NewNoopMetrics()
	metrics.ObserveRequest("/servers", "200", time.Second)
	metrics.ObserveToolCall("petstore", "error")
	metrics.SetMountedServers(0)
}
