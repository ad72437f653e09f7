package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PipelineMetrics struct {
	itemsTotal      *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	itemsInFlight   prometheus.Gauge
	pendingOpen     prometheus.Gauge
	expiredTotal    prometheus.Counter
}

func NewPipelineMetrics(registry prometheus.Registerer, service string) *PipelineMetrics {
	itemsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sekretar",
			Subsystem: "pipeline",
			Name:      "content_items_total",
			Help:      "Content items by terminal outcome.",
		},
		[]string{"service", "outcome"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sekretar",
			Subsystem: "pipeline",
			Name:      "content_process_duration_seconds",
			Help:      "Time from pipeline entry to terminal or parked state.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	itemsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "sekretar",
			Subsystem:   "pipeline",
			Name:        "content_items_in_flight",
			Help:        "Content items currently between Received and a parked/terminal state.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	pendingOpen := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "sekretar",
			Subsystem:   "pipeline",
			Name:        "pending_confirmations_open",
			Help:        "Live pending confirmations awaiting a human decision.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	expiredTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "sekretar",
			Subsystem:   "pipeline",
			Name:        "pending_confirmations_expired_total",
			Help:        "Pending confirmations removed by the TTL sweep.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(itemsTotal, processDuration, itemsInFlight, pendingOpen, expiredTotal)

	return &PipelineMetrics{
		itemsTotal:      itemsTotal,
		processDuration: processDuration,
		itemsInFlight:   itemsInFlight,
		pendingOpen:     pendingOpen,
		expiredTotal:    expiredTotal,
	}
}

func (m *PipelineMetrics) StartItem() {
	m.itemsInFlight.Inc()
}

func (m *PipelineMetrics) FinishItem(service, outcome string, duration time.Duration) {
	m.itemsInFlight.Dec()
	m.itemsTotal.WithLabelValues(service, outcome).Inc()
	m.processDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ConfirmationOpened() {
	m.pendingOpen.Inc()
}

func (m *PipelineMetrics) ConfirmationClosed(expired bool) {
	m.pendingOpen.Dec()
	if expired {
		m.expiredTotal.Inc()
	}
}
