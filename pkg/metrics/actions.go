package metrics

import "github.com/prometheus/client_golang/prometheus"

// ActionMetrics counts follow-on action dispatches.
type ActionMetrics struct {
	dispatched *prometheus.CounterVec
}

func NewActionMetrics(reg prometheus.Registerer) *ActionMetrics {
	if reg == nil {
		return &ActionMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "action_dispatch_total",
		Help: "Follow-on action dispatch attempts by outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(dispatched)
	return &ActionMetrics{dispatched: dispatched}
}

// Inc records a dispatch attempt. outcome is one of ok, retry or dlq.
func (a *ActionMetrics) Inc(kind, outcome string) {
	if a == nil || a.dispatched == nil {
		return
	}
	a.dispatched.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
