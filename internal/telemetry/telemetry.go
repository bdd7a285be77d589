package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the profiling engine. Collectors register
// on the default registry; the /metrics handler exposes them.

var (
	SessionsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyprint_sessions_persisted_total",
		Help: "Labeled training sessions persisted.",
	})

	IdentifyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyprint_identify_requests_total",
		Help: "Identify requests by verdict status.",
	}, []string{"status"})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyprint_training_runs_total",
		Help: "Training runs by outcome.",
	}, []string{"outcome"})

	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keyprint_training_duration_seconds",
		Help:    "Wall time of one training run.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	IdentifyConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keyprint_identify_confidence",
		Help:    "Final session confidence of identify verdicts.",
		Buckets: prometheus.LinearBuckets(0.05, 0.05, 19),
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyprint_active_identification_sessions",
		Help: "Identification sessions currently held in the eviction cache.",
	})
)
