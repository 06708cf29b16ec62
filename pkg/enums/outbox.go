package enums

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateVariant OutboxAggregateType = "variant"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregateVariant}

func (a OutboxAggregateType) IsValid() bool { return known(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(aggregateTypes, "aggregate type", value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderPaid          OutboxEventType = "order.paid"
	EventOrderPaymentFailed OutboxEventType = "order.payment_failed"
	EventOrderCancelled     OutboxEventType = "order.cancelled"
	EventOrderExpired       OutboxEventType = "order.expired"
	EventOrderShipped       OutboxEventType = "order.shipped"
	EventOrderDelivered     OutboxEventType = "order.delivered"
	EventInventoryReserved  OutboxEventType = "inventory.reserved"
	EventInventoryCommitted OutboxEventType = "inventory.committed"
	EventInventoryReleased  OutboxEventType = "inventory.released"
	EventInventoryAdjusted  OutboxEventType = "inventory.adjusted"
	EventInventoryLowStock  OutboxEventType = "inventory.low_stock"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderCancelled,
	EventOrderExpired,
	EventOrderShipped,
	EventOrderDelivered,
	EventInventoryReserved,
	EventInventoryCommitted,
	EventInventoryReleased,
	EventInventoryAdjusted,
	EventInventoryLowStock,
}

func (e OutboxEventType) IsValid() bool { return known(outboxEventTypes, e) }

// Aggregate returns the aggregate family encoded in the event name.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	if len(e) > len("order.") && e[:len("order.")] == "order." {
		return AggregateOrder
	}
	return AggregateVariant
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(outboxEventTypes, "event type", value)
}

// OutboxEventTypes returns every known event type.
func OutboxEventTypes() []OutboxEventType {
	return append([]OutboxEventType(nil), outboxEventTypes...)
}
