package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics counts lifecycle activity: transitions, checkouts, expiry
// sweeps and payment webhooks. A nil receiver is a no-op.
type OrderMetrics struct {
	transitions *prometheus.CounterVec
	checkouts   *prometheus.CounterVec
	sweep       *prometheus.CounterVec
	webhooks    *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Applied order state transitions.",
	}, []string{"action", "from", "to"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_attempts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	sweep := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expiry_sweep_orders_total",
		Help: "Orders visited by the expiry sweep by result.",
	}, []string{"result"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Payment webhook deliveries by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(transitions, checkouts, sweep, webhooks)
	return &OrderMetrics{
		transitions: transitions,
		checkouts:   checkouts,
		sweep:       sweep,
		webhooks:    webhooks,
	}
}

// IncTransition records an applied transition.
func (m *OrderMetrics) IncTransition(action, from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(action), normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncCheckout records a checkout outcome (created, insufficient_stock, ...).
func (m *OrderMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddSweep adds n orders to the sweep counter for result.
func (m *OrderMetrics) AddSweep(result string, n int) {
	if m == nil || m.sweep == nil || n <= 0 {
		return
	}
	m.sweep.WithLabelValues(normalizeLabel(result)).Add(float64(n))
}

// IncWebhook records a payment webhook outcome.
func (m *OrderMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}
