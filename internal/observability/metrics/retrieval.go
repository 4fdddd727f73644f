package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/conversational-search/internal/core/usecase"
)

// RetrievalMetrics records per-turn and per-stage retrieval measurements.
type RetrievalMetrics struct {
	service string

	turnsTotal    *prometheus.CounterVec
	turnDuration  *prometheus.HistogramVec
	turnHits      *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	rerankSkipped *prometheus.CounterVec
}

var _ usecase.RetrievalObserver = (*RetrievalMetrics)(nil)

// NewRetrievalMetrics registers the collectors on registerer; a nil
// registerer keeps them private.
func NewRetrievalMetrics(service string, registerer prometheus.Registerer) *RetrievalMetrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "turns_total",
			Help:      "Total retrieved conversational turns by status.",
		},
		[]string{"service", "status"},
	)
	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn retrieval duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "status"},
	)
	turnHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "turn_hits",
			Help:      "Distribution of fused hits per successful turn.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 200, 1000},
		},
		[]string{"service"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Duration of rewrite, search, lookup and rerank calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "stage", "status"},
	)
	rerankSkipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "rerank_skipped_total",
			Help:      "Total rerank requests skipped because no reranker is configured.",
		},
		[]string{"service"},
	)

	registerer.MustRegister(turnsTotal, turnDuration, turnHits, stageDuration, rerankSkipped)

	return &RetrievalMetrics{
		service:       service,
		turnsTotal:    turnsTotal,
		turnDuration:  turnDuration,
		turnHits:      turnHits,
		stageDuration: stageDuration,
		rerankSkipped: rerankSkipped,
	}
}

func (m *RetrievalMetrics) ObserveStage(stage string, duration time.Duration, err error) {
	m.stageDuration.WithLabelValues(m.service, stage, statusOf(err)).Observe(duration.Seconds())
}

func (m *RetrievalMetrics) ObserveTurn(hits int, duration time.Duration, err error) {
	status := statusOf(err)
	m.turnsTotal.WithLabelValues(m.service, status).Inc()
	m.turnDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	if err == nil {
		m.turnHits.WithLabelValues(m.service).Observe(float64(hits))
	}
}

func (m *RetrievalMetrics) RerankSkipped() {
	m.rerankSkipped.WithLabelValues(m.service).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
