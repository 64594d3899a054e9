package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulerMetrics exposes counters/histograms for the booking flows.
type SchedulerMetrics struct {
	turnsTotal         *prometheus.CounterVec
	appointmentOps     *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	intentsDispatched  *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
	remindersSentTotal *prometheus.CounterVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by resulting state",
		}, []string{"state"}),
		appointmentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "ops_total",
			Help:      "Appointment mutations by operation and outcome",
		}, []string{"op", "outcome"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointments",
			Name:      "side_effect_failures_total",
			Help:      "Intents that could not be emitted after an appointment commit",
		}, []string{"kind"}),
		intentsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "intents",
			Name:      "dispatched_total",
			Help:      "Intents consumed by the dispatcher",
		}, []string{"event_type", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of WhatsApp webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		remindersSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Appointment reminders delivered",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.appointmentOps, m.sideEffectFailures, m.intentsDispatched, m.webhookLatency, m.remindersSentTotal)
	return m
}

func (m *SchedulerMetrics) ObserveTurn(state string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(state).Inc()
}

// ObserveAppointmentOp records create/reschedule/cancel outcomes
// ("ok", "conflict", "not_found", "error").
func (m *SchedulerMetrics) ObserveAppointmentOp(op, outcome string) {
	if m == nil {
		return
	}
	m.appointmentOps.WithLabelValues(op, outcome).Inc()
}

func (m *SchedulerMetrics) ObserveSideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *SchedulerMetrics) ObserveIntent(eventType, status string) {
	if m == nil {
		return
	}
	m.intentsDispatched.WithLabelValues(eventType, status).Inc()
}

func (m *SchedulerMetrics) ObserveWebhookLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}

func (m *SchedulerMetrics) ObserveReminder(status string) {
	if m == nil {
		return
	}
	m.remindersSentTotal.WithLabelValues(status).Inc()
}
