package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "clinic"

// BookingMetrics counts appointment writes and rejected slots.
type BookingMetrics struct {
	createdTotal   *prometheus.CounterVec
	conflictsTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "appointments_created_total",
			Help:      "Appointments created, by entry point",
		}, []string{"origin"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Booking attempts rejected as slot conflicts",
		}, []string{"reason"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createdTotal, m.conflictsTotal)
	return m
}

func (m *BookingMetrics) ObserveCreated(origin string) {
	if m == nil {
		return
	}
	m.createdTotal.WithLabelValues(origin).Inc()
}

func (m *BookingMetrics) ObserveConflict(reason string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(reason).Inc()
}

// ConversationMetrics tracks tool-calling turns.
type ConversationMetrics struct {
	turnsTotal      *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	capabilityCalls *prometheus.CounterVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversational turns, by outcome",
		}, []string{"outcome"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "llm_latency_seconds",
			Help:      "Latency of language model completions",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"round", "status"}),
		capabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "capability_calls_total",
			Help:      "Capability invocations requested by the model",
		}, []string{"name", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.llmLatency, m.capabilityCalls)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *ConversationMetrics) ObserveLLM(round, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(round, status).Observe(seconds)
}

func (m *ConversationMetrics) ObserveCapability(name, status string) {
	if m == nil {
		return
	}
	m.capabilityCalls.WithLabelValues(name, status).Inc()
}
