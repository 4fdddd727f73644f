package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	batchTotal    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchInFlight prometheus.Gauge
	batchTurns    *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	batchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_total",
			Help:      "Total processed topic batches by status.",
		},
		[]string{"service", "status"},
	)
	batchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_duration_seconds",
			Help:      "Topic batch processing duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "status"},
	)
	batchInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "batch_in_flight",
			Help:      "Number of in-flight topic batches.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	batchTurns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "turns_total",
			Help:      "Total turns replayed by workers by outcome.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(batchTotal, batchDuration, batchInFlight, batchTurns)

	return &WorkerMetrics{
		registry:      registry,
		batchTotal:    batchTotal,
		batchDuration: batchDuration,
		batchInFlight: batchInFlight,
		batchTurns:    batchTurns,
	}
}

// Registry lets retrieval metrics share the worker /metrics endpoint.
func (m *WorkerMetrics) Registry() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartBatch() {
	m.batchInFlight.Inc()
}

func (m *WorkerMetrics) FinishBatch(service string, turns, failed int, duration time.Duration, err error) {
	m.batchInFlight.Dec()

	status := statusOf(err)
	m.batchTotal.WithLabelValues(service, status).Inc()
	m.batchDuration.WithLabelValues(service, status).Observe(duration.Seconds())

	if ok := turns - failed; ok > 0 {
		m.batchTurns.WithLabelValues(service, "success").Add(float64(ok))
	}
	if failed > 0 {
		m.batchTurns.WithLabelValues(service, "failed").Add(float64(failed))
	}
}
