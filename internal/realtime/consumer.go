package realtime

import (
	"context"

	"github.com/angelmondragon/sareehub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
)

// Broadcaster adapts the hub to the Pub/Sub subscriber.
type Broadcaster struct {
	hub *Hub
}

func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub}
}

// Handle converts a decoded outbox event into an SSE frame. Broadcasting never fails.
func (b *Broadcaster) Handle(_ context.Context, event *registry.ResolvedEvent) error {
	if b == nil || b.hub == nil || event == nil {
		return nil
	}
	b.hub.Broadcast(Event{
		ID:            event.Envelope.EventID,
		Type:          string(event.Descriptor.EventType),
		AggregateType: string(event.Descriptor.AggregateType),
		AggregateID:   aggregateID(event.Payload),
		OccurredAt:    event.Envelope.OccurredAt.UTC(),
		Data:          event.Envelope.Data,
	})
	return nil
}

func aggregateID(payload any) string {
	switch p := payload.(type) {
	case *payloads.OrderCreatedEvent:
		return p.OrderID.String()
	case *payloads.OrderPaidEvent:
		return p.OrderID.String()
	case *payloads.OrderPaymentFailedEvent:
		return p.OrderID.String()
	case *payloads.OrderCancelledEvent:
		return p.OrderID.String()
	case *payloads.OrderExpiredEvent:
		return p.OrderID.String()
	case *payloads.OrderShippedEvent:
		return p.OrderID.String()
	case *payloads.OrderDeliveredEvent:
		return p.OrderID.String()
	case *payloads.InventoryMovementEvent:
		return p.VariantID.String()
	case *payloads.LowStockEvent:
		return p.VariantID.String()
	default:
		return ""
	}
}
