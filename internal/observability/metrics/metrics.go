package metrics

import "github.com/prometheus/client_golang/prometheus"

// ResilienceMetrics exposes counters/gauges for the model-call resilience layer.
type ResilienceMetrics struct {
	retriesTotal      *prometheus.CounterVec
	exhaustedTotal    *prometheus.CounterVec
	fallbackTotal     *prometheus.CounterVec
	deadLetterAdded   *prometheus.CounterVec
	deadLetterRetries *prometheus.CounterVec
	deadLetterSize    prometheus.Gauge
	repairsTotal      *prometheus.CounterVec
}

func NewResilienceMetrics(reg prometheus.Registerer) *ResilienceMetrics {
	m := &ResilienceMetrics{
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Subsystem: "model",
			Name:      "retries_total",
			Help:      "Model call retries scheduled after a failed attempt",
		}, []string{"operation"}),
		exhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Subsystem: "model",
			Name:      "retries_exhausted_total",
			Help:      "Model calls that failed every attempt",
		}, []string{"operation"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Subsystem: "model",
			Name:      "fallback_total",
			Help:      "Results served by the heuristic fallback engine",
		}, []string{"operation"}),
		deadLetterAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Subsystem: "dead_letter",
			Name:      "added_total",
			Help:      "Dead-letter entries recorded",
		}, []string{"operation"}),
		deadLetterRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Subsystem: "dead_letter",
			Name:      "retries_total",
			Help:      "Manual dead-letter retries by outcome",
		}, []string{"operation", "outcome"}),
		deadLetterSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "negotiation",
			Subsystem: "dead_letter",
			Name:      "entries",
			Help:      "Entries currently held in the dead-letter store",
		}),
		repairsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "negotiation",
			Subsystem: "state",
			Name:      "repairs_total",
			Help:      "Conversation state fields repaired",
		}, []string{"field"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.retriesTotal,
		m.exhaustedTotal,
		m.fallbackTotal,
		m.deadLetterAdded,
		m.deadLetterRetries,
		m.deadLetterSize,
		m.repairsTotal,
	)
	return m
}

func (m *ResilienceMetrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}

func (m *ResilienceMetrics) ObserveExhausted(operation string) {
	if m == nil {
		return
	}
	m.exhaustedTotal.WithLabelValues(operation).Inc()
}

func (m *ResilienceMetrics) ObserveFallback(operation string) {
	if m == nil {
		return
	}
	m.fallbackTotal.WithLabelValues(operation).Inc()
}

func (m *ResilienceMetrics) ObserveDeadLetterAdded(operation string) {
	if m == nil {
		return
	}
	m.deadLetterAdded.WithLabelValues(operation).Inc()
}

// ObserveDeadLetterRetry records a manual retry; outcome is "succeeded" or "failed".
func (m *ResilienceMetrics) ObserveDeadLetterRetry(operation string, succeeded bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	m.deadLetterRetries.WithLabelValues(operation, outcome).Inc()
}

func (m *ResilienceMetrics) SetDeadLetterSize(n int) {
	if m == nil {
		return
	}
	m.deadLetterSize.Set(float64(n))
}

func (m *ResilienceMetrics) ObserveRepair(field string) {
	if m == nil {
		return
	}
	m.repairsTotal.WithLabelValues(field).Inc()
}
