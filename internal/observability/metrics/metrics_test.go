package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabel(metric, label, value) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name && pair.GetValue() == value {
			return true
		}
	}
	return false
}

func TestBookingMetricsCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveCreated("direct")
	m.ObserveCreated("conversational")
	m.ObserveCreated("conversational")
	m.ObserveConflict("block")

	if got := counterValue(t, reg, "clinic_booking_appointments_created_total", "origin", "conversational"); got != 2 {
		t.Fatalf("expected 2 conversational bookings, got %v", got)
	}
	if got := counterValue(t, reg, "clinic_booking_conflicts_total", "reason", "block"); got != 1 {
		t.Fatalf("expected 1 block conflict, got %v", got)
	}
}

func TestConversationMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewConversationMetrics(reg)
	m.ObserveTurn("replied")
	m.ObserveLLM("initial", "ok", 0.4)
	m.ObserveCapability("checkAvailability", "ok")

	if got := counterValue(t, reg, "clinic_conversation_turns_total", "outcome", "replied"); got != 1 {
		t.Fatalf("expected 1 replied turn, got %v", got)
	}
	if got := counterValue(t, reg, "clinic_conversation_capability_calls_total", "name", "checkAvailability"); got != 1 {
		t.Fatalf("expected 1 capability call, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var b *BookingMetrics
	b.ObserveCreated("direct")
	b.ObserveConflict("closed")

	var c *ConversationMetrics
	c.ObserveTurn("failed")
	c.ObserveLLM("final", "error", 1)
	c.ObserveCapability("transferToHuman", "ok")
}
