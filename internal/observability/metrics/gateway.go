package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records one outcome per backend call, which together with
// the structured log line forms the gateway's observability record.
type GatewayMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

func NewGatewayMetrics(registry prometheus.Registerer, service string) *GatewayMetrics {
	callsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sekretar",
			Subsystem: "gateway",
			Name:      "backend_calls_total",
			Help:      "AI backend calls by backend, operation and outcome.",
		},
		[]string{"service", "backend", "operation", "outcome"},
	)
	callDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sekretar",
			Subsystem: "gateway",
			Name:      "backend_call_duration_seconds",
			Help:      "AI backend call latency by backend and operation.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "backend", "operation"},
	)

	registry.MustRegister(callsTotal, callDuration)

	return &GatewayMetrics{
		callsTotal:   callsTotal,
		callDuration: callDuration,
	}
}

func (m *GatewayMetrics) ObserveCall(service, backend, operation, outcome string, duration time.Duration) {
	m.callsTotal.WithLabelValues(service, backend, operation, outcome).Inc()
	m.callDuration.WithLabelValues(service, backend, operation).Observe(duration.Seconds())
}
