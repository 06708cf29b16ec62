package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/payloads"
)

// EventDescriptor ties an event type to its aggregate, topic and payload shape.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row or delivered message.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish, however often it is retried.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

var payloadShapes = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:       payloadOf[payloads.OrderCreatedEvent](),
	enums.EventOrderPaid:          payloadOf[payloads.OrderPaidEvent](),
	enums.EventOrderPaymentFailed: payloadOf[payloads.OrderPaymentFailedEvent](),
	enums.EventOrderCancelled:     payloadOf[payloads.OrderCancelledEvent](),
	enums.EventOrderExpired:       payloadOf[payloads.OrderExpiredEvent](),
	enums.EventOrderShipped:       payloadOf[payloads.OrderShippedEvent](),
	enums.EventOrderDelivered:     payloadOf[payloads.OrderDeliveredEvent](),
	enums.EventInventoryReserved:  payloadOf[payloads.InventoryMovementEvent](),
	enums.EventInventoryCommitted: payloadOf[payloads.InventoryMovementEvent](),
	enums.EventInventoryReleased:  payloadOf[payloads.InventoryMovementEvent](),
	enums.EventInventoryAdjusted:  payloadOf[payloads.InventoryMovementEvent](),
	enums.EventInventoryLowStock:  payloadOf[payloads.LowStockEvent](),
}

// NewEventRegistry routes order events to the orders topic and variant
// (ledger) events to the inventory topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topicFor := map[enums.OutboxAggregateType]string{
		enums.AggregateOrder:   cfg.OrdersTopic,
		enums.AggregateVariant: cfg.InventoryTopic,
	}
	switch {
	case cfg.OrdersTopic == "":
		return nil, fmt.Errorf("orders topic is required")
	case cfg.InventoryTopic == "":
		return nil, fmt.Errorf("inventory topic is required")
	}

	entries := make(map[enums.OutboxEventType]EventDescriptor, len(payloadShapes))
	for eventType, factory := range payloadShapes {
		aggregate := eventType.Aggregate()
		entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  aggregate,
			Topic:          topicFor[aggregate],
			PayloadFactory: factory,
		}
	}
	return &EventRegistry{entries: entries}, nil
}

// Topics lists every topic an event can be routed to, sorted.
func (r *EventRegistry) Topics() []string {
	var topics []string
	for _, desc := range r.entries {
		if !slices.Contains(topics, desc.Topic) {
			topics = append(topics, desc.Topic)
		}
	}
	slices.Sort(topics)
	return topics
}

// Resolve checks the row against its descriptor and decodes the payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: %s is a %s event, row says %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}
	return desc.decode(event.Payload)
}

// ResolveMessage decodes a delivered message keyed by its event_type attribute.
func (r *EventRegistry) ResolveMessage(eventType string, data []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[enums.OutboxEventType(eventType)]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %q", eventType))
	}
	return desc.decode(data)
}

func (d EventDescriptor) decode(raw []byte) (*ResolvedEvent, error) {
	envelope, err := outbox.DecodeEnvelope(raw)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", d.EventType))
	}

	payload := d.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", d.EventType, err))
	}
	return &ResolvedEvent{Descriptor: d, Envelope: envelope, Payload: payload}, nil
}
