package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records outbound webhook delivery outcomes.
type WebhookMetrics struct {
	duration  *prometheus.HistogramVec
	attempted *prometheus.CounterVec
	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
	exhausted *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook delivery metrics on the provided
// registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_attempt_duration_seconds",
		Help:    "Duration of outbound webhook attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	attempted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_attempts_total",
		Help: "Outbound webhook attempts issued.",
	}, []string{"event_type"})
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_delivered_total",
		Help: "Webhook deliveries acknowledged with a 2xx response.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_attempt_failures_total",
		Help: "Webhook attempts that did not get a 2xx response.",
	}, []string{"event_type"})
	exhausted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_exhausted_total",
		Help: "Deliveries marked failed after the attempt budget ran out.",
	}, []string{"event_type"})
	reg.MustRegister(duration, attempted, delivered, failed, exhausted)
	return &WebhookMetrics{
		duration:  duration,
		attempted: attempted,
		delivered: delivered,
		failed:    failed,
		exhausted: exhausted,
	}
}

// ObserveDuration records one attempt's wall time for the event type.
func (m *WebhookMetrics) ObserveDuration(eventType string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncAttempted counts an issued attempt.
func (m *WebhookMetrics) IncAttempted(eventType string) {
	if m == nil || m.attempted == nil {
		return
	}
	m.attempted.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDelivered counts a successful delivery.
func (m *WebhookMetrics) IncDelivered(eventType string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed counts a failed attempt.
func (m *WebhookMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncExhausted counts a delivery that ran out of attempts.
func (m *WebhookMetrics) IncExhausted(eventType string) {
	if m == nil || m.exhausted == nil {
		return
	}
	m.exhausted.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
