package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
)

func TestBroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Subscribe()
	b := hub.Subscribe()
	require.Equal(t, 2, hub.Count())

	delivered := hub.Broadcast(Event{ID: "1", Type: "order.created"})
	assert.Equal(t, 2, delivered)
	assert.Equal(t, "1", (<-a.Events()).ID)
	assert.Equal(t, "1", (<-b.Events()).ID)
}

func TestSlowClientDropsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := NewHub(1, metrics.NewRealtimeMetrics(reg))
	slow := hub.Subscribe()
	fast := hub.Subscribe()

	assert.Equal(t, 2, hub.Broadcast(Event{ID: "1", Type: "inventory.reserved"}))
	<-fast.Events()
	assert.Equal(t, 1, hub.Broadcast(Event{ID: "2", Type: "inventory.reserved"}))

	assert.Equal(t, "1", (<-slow.Events()).ID)
	assert.Equal(t, "2", (<-fast.Events()).ID)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var dropped float64
	for _, mf := range mfs {
		if mf.GetName() == "sareehub_realtime_dropped_total" {
			dropped = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), dropped)
}

func TestUnsubscribeClosesClient(t *testing.T) {
	hub := NewHub(1, nil)
	client := hub.Subscribe()
	hub.Unsubscribe(client)
	hub.Unsubscribe(client)

	_, open := <-client.Events()
	assert.False(t, open)
	assert.Equal(t, 0, hub.Count())
	assert.Equal(t, 0, hub.Broadcast(Event{ID: "1"}))
}

func TestCloseDisconnectsClients(t *testing.T) {
	hub := NewHub(1, nil)
	client := hub.Subscribe()
	hub.Close()

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client not closed")
	}
	late := hub.Subscribe()
	_, open := <-late.Events()
	assert.False(t, open)
	assert.Equal(t, 0, hub.Count())
}

func TestConcurrentBroadcastAndUnsubscribe(t *testing.T) {
	hub := NewHub(2, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := hub.Subscribe()
			hub.Broadcast(Event{ID: uuid.NewString()})
			hub.Unsubscribe(client)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Count())
}

func TestBroadcasterForwardsResolvedEvents(t *testing.T) {
	hub := NewHub(1, nil)
	client := hub.Subscribe()
	variantID := uuid.New()
	data, err := json.Marshal(payloads.LowStockEvent{VariantID: variantID, SKU: "SAR-1", Available: 1, Threshold: 2})
	require.NoError(t, err)
	occurred := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	err = NewBroadcaster(hub).Handle(context.Background(), &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{EventType: enums.EventInventoryLowStock, AggregateType: enums.AggregateVariant},
		Envelope:   outbox.PayloadEnvelope{Version: 1, EventID: "evt-1", OccurredAt: occurred, Data: data},
		Payload:    &payloads.LowStockEvent{VariantID: variantID},
	})
	require.NoError(t, err)

	got := <-client.Events()
	assert.Equal(t, "evt-1", got.ID)
	assert.Equal(t, "inventory.low_stock", got.Type)
	assert.Equal(t, "variant", got.AggregateType)
	assert.Equal(t, variantID.String(), got.AggregateID)
	assert.Equal(t, occurred, got.OccurredAt)
	assert.JSONEq(t, string(data), string(got.Data))
}
