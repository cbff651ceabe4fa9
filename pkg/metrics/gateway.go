package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics counts outbound calls to payment, carrier and ERP APIs.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewGatewayMetrics registers the outbound call metrics on reg. A nil
// registerer yields a no-op recorder.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Outbound gateway requests by outcome.",
	}, []string{"gateway", "op", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of outbound gateway requests including retries.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"gateway", "op"})
	reg.MustRegister(requests, duration)
	return &GatewayMetrics{requests: requests, duration: duration}
}

// Observe records one logical call. outcome is "ok" or the failure kind.
func (g *GatewayMetrics) Observe(gateway, op, outcome string, elapsed time.Duration) {
	if g == nil || g.requests == nil {
		return
	}
	g.requests.WithLabelValues(normalizeLabel(gateway), normalizeLabel(op), normalizeLabel(outcome)).Inc()
	g.duration.WithLabelValues(normalizeLabel(gateway), normalizeLabel(op)).Observe(elapsed.Seconds())
}
