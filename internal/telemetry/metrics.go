package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quality"

// Metrics holds the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// eventsRecorded counts record calls.
	// Labels: kind (install_attempt, health_check, user_feedback), status (stored, duplicate, failed, invalid)
	eventsRecorded *prometheus.CounterVec

	// storeLatency measures store round trips.
	// Labels: op
	storeLatency *prometheus.HistogramVec

	// cleanupDeleted counts rows removed by retention sweeps.
	// Labels: kind
	cleanupDeleted *prometheus.CounterVec

	// publishFailures counts events the stream publisher gave up on.
	publishFailures prometheus.Counter

	// enhanceCandidates counts discovery candidates annotated.
	// Labels: has_data (true, false)
	enhanceCandidates *prometheus.CounterVec
}

// New registers collectors with reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		eventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "events_total",
			Help:      "Record calls by event kind and outcome",
		}, []string{"kind", "status"}),
		storeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "op_duration_seconds",
			Help:      "Store operation latency in seconds",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		cleanupDeleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "deleted_total",
			Help:      "Events removed by retention sweeps",
		}, []string{"kind"}),
		publishFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "publish_failures_total",
			Help:      "Events that could not be published to the stream",
		}),
		enhanceCandidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enhance",
			Name:      "candidates_total",
			Help:      "Discovery candidates annotated with quality data",
		}, []string{"has_data"}),
	}
}

func (m *Metrics) EventRecorded(kind, status string) {
	if m == nil {
		return
	}
	m.eventsRecorded.WithLabelValues(kind, status).Inc()
}

// ObserveStore records the latency of op since start.
func (m *Metrics) ObserveStore(op string, start time.Time) {
	if m == nil {
		return
	}
	m.storeLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) CleanupDeleted(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupDeleted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.publishFailures.Inc()
}

func (m *Metrics) EnhanceCandidate(hasData bool) {
	if m == nil {
		return
	}
	label := "false"
	if hasData {
		label = "true"
	}
	m.enhanceCandidates.WithLabelValues(label).Inc()
}
