// Package metrics holds the Prometheus collectors of the auto-reply loop.
// Every method is safe on a nil *Metrics, so components can run unmetered.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the bot's collectors, registered on a caller-owned registry.
type Metrics struct {
	// Decisions counts processed posts. Labels: kind
	Decisions *prometheus.CounterVec
	// Cycles counts cycles. Labels: result ("ok", "search_error", "rate_limited", "page_unknown", "challenge", "paused", "persist_error", "shutdown")
	Cycles *prometheus.CounterVec
	// CycleDuration observes whole-cycle wall time.
	CycleDuration prometheus.Histogram
	// ClassifierLatency observes gateway calls. Labels: result ("ok", "timeout", "error")
	ClassifierLatency *prometheus.HistogramVec
	// ChallengeTransitions counts detector state changes. Labels: to
	ChallengeTransitions *prometheus.CounterVec
	// ChallengeActive is 1 while the loop is stalled on a challenge.
	ChallengeActive prometheus.Gauge
	// BreakerOpen is 1 while the classifier circuit is open.
	BreakerOpen prometheus.Gauge
	// DedupeSize is the number of replied identifiers.
	DedupeSize prometheus.Gauge
	// PersistFailures counts dedupe persist errors.
	PersistFailures prometheus.Counter
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer, kinds []string) *Metrics {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyd", Name: "decisions_total",
			Help: "Processed posts by decision kind.",
		}, []string{"kind"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyd", Name: "cycles_total",
			Help: "Scan cycles by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "replyd", Name: "cycle_duration_seconds",
			Help:    "Wall time of one scan cycle.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		ClassifierLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replyd", Name: "classifier_seconds",
			Help:    "Classifier gateway latency by result.",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		ChallengeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replyd", Name: "challenge_transitions_total",
			Help: "Challenge detector state transitions by target state.",
		}, []string{"to"}),
		ChallengeActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replyd", Name: "challenge_active",
			Help: "1 while waiting for manual challenge resolution.",
		}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replyd", Name: "classifier_breaker_open",
			Help: "1 while the classifier circuit breaker is open.",
		}),
		DedupeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "replyd", Name: "dedupe_ids",
			Help: "Identifiers in the replied set.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "replyd", Name: "dedupe_persist_failures_total",
			Help: "Failed dedupe persists after a confirmed reply.",
		}),
	}
	for _, k := range kinds {
		m.Decisions.WithLabelValues(k)
	}
	if reg != nil {
		reg.MustRegister(m.Decisions, m.Cycles, m.CycleDuration, m.ClassifierLatency,
			m.ChallengeTransitions, m.ChallengeActive, m.BreakerOpen, m.DedupeSize, m.PersistFailures)
	}
	return m
}

func (m *Metrics) Decision(kind string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind).Inc()
}

func (m *Metrics) Cycle(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Metrics) Classified(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ClassifierLatency.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) ChallengeTransition(to string, stalled bool) {
	if m == nil {
		return
	}
	m.ChallengeTransitions.WithLabelValues(to).Inc()
	m.ChallengeActive.Set(boolGauge(stalled))
}

func (m *Metrics) Breaker(open bool) {
	if m == nil {
		return
	}
	m.BreakerOpen.Set(boolGauge(open))
}

func (m *Metrics) Dedupe(n int) {
	if m == nil {
		return
	}
	m.DedupeSize.Set(float64(n))
}

func (m *Metrics) PersistFailed() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
