// Package metrics exposes Prometheus collectors reporting curation turn
// activity.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the orchestration loop reports into.
type Metrics struct {
	turnOutcomes       *prometheus.CounterVec
	modelCallDuration  prometheus.Histogram
	extractionFailures prometheus.Counter
	mergeSkips         *prometheus.CounterVec
}

var (
	defaultOnce   sync.Once
	sharedMetrics *Metrics
)

// Default returns the package-level metrics instance registered with the
// global Prometheus registry. Collectors are created only once to avoid
// duplicate registration panics when several loops run in one process.
func Default() *Metrics {
	defaultOnce.Do(func() {
		sharedMetrics = MustNew(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNew constructs a Metrics instance using the provided registerer. Pass
// a fresh registry in tests that need unique metric names. Registration
// errors panic, mirroring promauto semantics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		turnOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metacurator",
				Subsystem: "loop",
				Name:      "turn_outcomes_total",
				Help:      "Turn terminations by outcome.",
			},
			[]string{"outcome"},
		),
		modelCallDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "metacurator",
				Subsystem: "loop",
				Name:      "model_call_duration_seconds",
				Help:      "Wall time of individual model calls.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		extractionFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "metacurator",
				Subsystem: "extract",
				Name:      "failures_total",
				Help:      "Responses whose payload could not be applied.",
			},
		),
		mergeSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metacurator",
				Subsystem: "extract",
				Name:      "merge_skips_total",
				Help:      "Update keys dropped during merge, by reason.",
			},
			[]string{"reason"},
		),
	}
	reg.MustRegister(m.turnOutcomes, m.modelCallDuration, m.extractionFailures, m.mergeSkips)
	return m
}

// ObserveOutcome counts one turn termination.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.turnOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveModelCall records the duration of one model call.
func (m *Metrics) ObserveModelCall(d time.Duration) {
	m.modelCallDuration.Observe(d.Seconds())
}

// ObserveExtractionFailure counts one unusable payload.
func (m *Metrics) ObserveExtractionFailure() {
	m.extractionFailures.Inc()
}

// ObserveMergeSkip counts one dropped update key.
func (m *Metrics) ObserveMergeSkip(reason string) {
	m.mergeSkips.WithLabelValues(reason).Inc()
}
