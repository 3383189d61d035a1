package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the outbox publisher's relay of order events.
type OutboxMetrics struct {
	published *prometheus.CounterVec
	failed    *prometheus.CounterVec
	parked    *prometheus.CounterVec
	breaker   prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events delivered to Pub/Sub.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Publish attempts that failed and will be retried.",
	}, []string{"event_type"})
	parked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_parked_total",
		Help: "Outbox events parked without delivery.",
	}, []string{"event_type", "reason"})
	breaker := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_breaker_open",
		Help: "1 while the Pub/Sub circuit breaker is not closed.",
	})
	reg.MustRegister(published, failed, parked, breaker)
	return &OutboxMetrics{
		published: published,
		failed:    failed,
		parked:    parked,
		breaker:   breaker,
	}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m == nil || m.published == nil {
		return
	}
	m.published.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *OutboxMetrics) IncParked(eventType, reason string) {
	if m == nil || m.parked == nil {
		return
	}
	m.parked.WithLabelValues(normalizeLabel(eventType), normalizeLabel(reason)).Inc()
}

// SetBreakerOpen records whether publishing is currently short-circuited.
func (m *OutboxMetrics) SetBreakerOpen(open bool) {
	if m == nil || m.breaker == nil {
		return
	}
	if open {
		m.breaker.Set(1)
		return
	}
	m.breaker.Set(0)
}
