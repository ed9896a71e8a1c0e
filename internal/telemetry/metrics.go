package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"swaggerd/internal/domain"
)

type PrometheusMetrics struct {
	requestDuration *prometheus.HistogramVec
	toolCalls       *prometheus.CounterVec
	mountedServers  prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swaggerd_request_duration_seconds",
				Help:    "Duration of management API requests in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"route", "status"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swaggerd_tool_calls_total",
				Help: "Total number of proxied tool calls",
			},
			[]string{"prefix", "status"},
		),
		mountedServers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "swaggerd_mounted_servers",
				Help: "Current number of mounted tool servers",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveRequest(route, status string, duration time.Duration) {
	p.requestDuration.WithLabelValues(route, status).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveToolCall(prefix, status string) {
	p.toolCalls.WithLabelValues(prefix, status).Inc()
}

func (p *PrometheusMetrics) SetMountedServers(count int) {
	p.mountedServers.Set(float64(count))
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveRequest(_ string, _ string, _ time.Duration) {}

func (n *NoopMetrics) ObserveToolCall(_ string, _ string) {}

func (n *NoopMetrics) SetMountedServers(_ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
