package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestInventoryMetricsCountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewInventoryMetrics(reg)
	m.ObserveOperation("reserve", ResultSuccess)
	m.ObserveOperation("reserve", ResultSuccess)
	m.ObserveOperation("reserve", ResultInsufficientStock)
	m.IncCommitMismatch()
	m.AddExpired(3)
	m.AddExpired(0)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	success, err := findMetric(mfs, "sareehub_inventory_operations_total", map[string]string{"result": ResultSuccess})
	require.NoError(t, err)
	require.Equal(t, float64(2), success.GetCounter().GetValue())

	expired, err := findMetric(mfs, "sareehub_orders_reservation_expired_total", nil)
	require.NoError(t, err)
	require.Equal(t, float64(3), expired.GetCounter().GetValue())
}

func TestNilRecordersAreNoops(t *testing.T) {
	var inv *InventoryMetrics
	inv.ObserveOperation("reserve", ResultSuccess)
	inv.IncCommitMismatch()

	out := NewOutboxMetrics(nil)
	out.IncPublished("order.created")
	out.IncDLQ("order.created", "max_attempts")
}

func TestOutboxMetricsCountsPublished(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)
	m.IncPublished("order.paid")
	m.IncFailed("order.paid")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := findMetric(mfs, "sareehub_outbox_published_total", map[string]string{"event_type": "order.paid"})
	require.NoError(t, err)
	require.Equal(t, float64(1), got.GetCounter().GetValue())
}

func TestRealtimeMetricsCountsDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRealtimeMetrics(reg)
	m.SetClients(3)
	m.IncDropped("inventory.reserved")
	m.IncDropped("inventory.reserved")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	got, err := findMetric(mfs, "sareehub_realtime_dropped_total", map[string]string{"event_type": "inventory.reserved"})
	require.NoError(t, err)
	require.Equal(t, float64(2), got.GetCounter().GetValue())

	clients, err := findMetric(mfs, "sareehub_realtime_clients", nil)
	require.NoError(t, err)
	require.Equal(t, float64(3), clients.GetGauge().GetValue())

	NewRealtimeMetrics(nil).IncDropped("x")
}
