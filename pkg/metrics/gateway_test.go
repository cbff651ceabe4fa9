package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestGatewayMetricsCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGatewayMetrics(reg)
	m.Observe("payment", "create_order", "ok", 120*time.Millisecond)
	m.Observe("payment", "create_order", "ok", 80*time.Millisecond)
	m.Observe("payment", "create_order", "timeout", 30*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "gateway_requests_total", "outcome", "ok"); err != nil || got != 2 {
		t.Fatalf("expected 2 ok requests, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "gateway_requests_total", "outcome", "timeout"); err != nil || got != 1 {
		t.Fatalf("expected 1 timeout, got %f (%v)", got, err)
	}
	if sum, err := fetchHistogramSum(mfs, "gateway_request_duration_seconds", "gateway", "payment"); err != nil {
		t.Fatalf("histogram: %v", err)
	} else if sum < 30 {
		t.Fatalf("expected duration sum >= 30, got %f", sum)
	}
}

func TestNilRecordersAreSafe(t *testing.T) {
	var g *GatewayMetrics
	g.Observe("erp", "push_order", "ok", time.Second)
	NewGatewayMetrics(nil).Observe("erp", "push_order", "ok", time.Second)

	var a *ActionMetrics
	a.Inc("create_label", "ok")
	NewActionMetrics(nil).Inc("create_label", "ok")
}

func TestActionMetricsIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewActionMetrics(reg)
	m.Inc("push_order", "retry")
	m.Inc("push_order", "retry")
	m.Inc("", "dlq")
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "action_dispatch_total", "outcome", "retry"); err != nil || got != 2 {
		t.Fatalf("expected 2 retries, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "action_dispatch_total", "kind", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown kind label, got %f (%v)", got, err)
	}
}
