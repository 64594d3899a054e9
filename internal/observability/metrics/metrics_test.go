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
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matches(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, lp := range metric.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want == lp.GetValue() {
			found++
		}
	}
	return found == len(labels)
}

func TestSchedulerMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg)
	m.ObserveTurn("MAIN_MENU")
	m.ObserveTurn("MAIN_MENU")
	m.ObserveAppointmentOp("create", "conflict")
	m.ObserveSideEffectFailure("reminder")
	m.ObserveIntent("ledger.sync.v1", "ok")
	m.ObserveWebhookLatency("ok", 0.25)
	m.ObserveReminder("sent")

	if got := counterValue(t, reg, "clinic_conversation_turns_total", map[string]string{"state": "MAIN_MENU"}); got != 2 {
		t.Fatalf("turns_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "clinic_appointments_ops_total", map[string]string{"op": "create", "outcome": "conflict"}); got != 1 {
		t.Fatalf("ops_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "clinic_appointments_side_effect_failures_total", map[string]string{"kind": "reminder"}); got != 1 {
		t.Fatalf("side_effect_failures_total = %v, want 1", got)
	}
}

func TestSchedulerMetricsNilSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.ObserveTurn("WELCOME")
	m.ObserveAppointmentOp("create", "ok")
	m.ObserveSideEffectFailure("ledger")
	m.ObserveIntent("x", "y")
	m.ObserveWebhookLatency("ok", 0.1)
	m.ObserveReminder("sent")
}
