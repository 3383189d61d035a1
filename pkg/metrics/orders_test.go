package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.IncTransition("expire", "PENDING_PAYMENT", "EXPIRED")
	m.IncTransition("expire", "PENDING_PAYMENT", "EXPIRED")
	m.IncCheckout("created")
	m.AddSweep("succeeded", 3)
	m.AddSweep("failed", 0)
	m.IncWebhook("")

	require.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("expire", "PENDING_PAYMENT", "EXPIRED")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.checkouts.WithLabelValues("created")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.sweep.WithLabelValues("succeeded")))
	require.Equal(t, 1, testutil.CollectAndCount(m.sweep), "zero adds must not create a series")
	require.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("unknown")))
}

func TestOrderMetricsNilSafe(t *testing.T) {
	var m *OrderMetrics
	m.IncTransition("cancel", "PAID", "CANCELLED")
	m.IncCheckout("created")
	m.AddSweep("failed", 1)
	m.IncWebhook("ok")

	unregistered := NewOrderMetrics(nil)
	unregistered.IncCheckout("created")
}
