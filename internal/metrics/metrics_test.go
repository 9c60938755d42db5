package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if matches(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func matches(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestOrchestratorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	m.EventDispatched("CallConnected", "processed")
	m.EventDispatched("CallConnected", "processed")
	m.ProviderAction("add_participant", "transient")
	m.ProviderRetry("add_participant")
	m.StoreConflict()
	m.IncomingCall("deferred")

	if v := counterValue(t, reg, "orchestrator_events_total", map[string]string{"type": "CallConnected", "outcome": "processed"}); v != 2 {
		t.Fatalf("expected 2 events, got %v", v)
	}
	if v := counterValue(t, reg, "orchestrator_provider_actions_total", map[string]string{"action": "add_participant", "result": "transient"}); v != 1 {
		t.Fatalf("expected 1 action, got %v", v)
	}
	if v := counterValue(t, reg, "orchestrator_provider_retries_total", map[string]string{"action": "add_participant"}); v != 1 {
		t.Fatalf("expected 1 retry, got %v", v)
	}
	if v := counterValue(t, reg, "orchestrator_store_conflicts_total", map[string]string{}); v != 1 {
		t.Fatalf("expected 1 conflict, got %v", v)
	}
	if v := counterValue(t, reg, "orchestrator_incoming_calls_total", map[string]string{"result": "deferred"}); v != 1 {
		t.Fatalf("expected 1 incoming call, got %v", v)
	}
}

func TestNew_DoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
