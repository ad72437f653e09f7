package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type EngineMetrics struct {
	jobsTotal    *prometheus.CounterVec
	retriesTotal *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
}

func NewEngineMetrics(registry prometheus.Registerer, service string) *EngineMetrics {
	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sekretar",
			Subsystem: "engine",
			Name:      "jobs_total",
			Help:      "Jobs reaching a terminal state by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sekretar",
			Subsystem: "engine",
			Name:      "job_retries_total",
			Help:      "Retries scheduled after a failed attempt, by kind.",
		},
		[]string{"service", "kind"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sekretar",
			Subsystem: "engine",
			Name:      "job_attempt_duration_seconds",
			Help:      "Single attempt duration by kind.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "kind"},
	)
	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "sekretar",
			Subsystem:   "engine",
			Name:        "queue_depth",
			Help:        "Jobs waiting for an eligible run time or a free worker.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(jobsTotal, retriesTotal, jobDuration, queueDepth)

	return &EngineMetrics{
		jobsTotal:    jobsTotal,
		retriesTotal: retriesTotal,
		jobDuration:  jobDuration,
		queueDepth:   queueDepth,
	}
}

func (m *EngineMetrics) JobFinished(service, kind, status string) {
	m.jobsTotal.WithLabelValues(service, kind, status).Inc()
}

func (m *EngineMetrics) RetryScheduled(service, kind string) {
	m.retriesTotal.WithLabelValues(service, kind).Inc()
}

func (m *EngineMetrics) ObserveAttempt(service, kind string, duration time.Duration) {
	m.jobDuration.WithLabelValues(service, kind).Observe(duration.Seconds())
}

func (m *EngineMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}
