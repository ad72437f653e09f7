package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles all collectors exposed by the worker binary.
type Registry struct {
	registry *prometheus.Registry

	Pipeline *PipelineMetrics
	Gateway  *GatewayMetrics
	Engine   *EngineMetrics
}

func New(service string) *Registry {
	registry := prometheus.NewRegistry()
	return &Registry{
		registry: registry,
		Pipeline: NewPipelineMetrics(registry, service),
		Gateway:  NewGatewayMetrics(registry, service),
		Engine:   NewEngineMetrics(registry, service),
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
