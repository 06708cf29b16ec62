package analytics

import (
	"context"
	"math/big"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sareehub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox/registry"
)

type rowWriter interface {
	InsertMovement(ctx context.Context, row MovementRow) error
	InsertOrderFact(ctx context.Context, row OrderFactRow) error
}

// Handler turns decoded outbox events into BigQuery rows.
// Inventory movements land in the movements table; order lifecycle events in order facts.
type Handler struct {
	writer rowWriter
}

func NewHandler(writer rowWriter) *Handler {
	return &Handler{writer: writer}
}

// Handle writes the row for the event. Events without an analytics shape are ignored.
func (h *Handler) Handle(ctx context.Context, event *registry.ResolvedEvent) error {
	if event == nil {
		return nil
	}
	base := OrderFactRow{
		EventID:    event.Envelope.EventID,
		EventType:  string(event.Descriptor.EventType),
		OccurredAt: event.Envelope.OccurredAt.UTC(),
		Payload:    encodeJSON(event.Envelope.Data),
	}

	switch p := event.Payload.(type) {
	case *payloads.InventoryMovementEvent:
		return h.writer.InsertMovement(ctx, movementRow(base, p))
	case *payloads.OrderCreatedEvent:
		row := orderFact(base, p.OrderID, p.OrderNumber, p.CustomerID)
		row.TotalAmount = amount(p.TotalAmount)
		row.Currency = nullString(p.Currency)
		row.ItemCount = int64(len(p.Items))
		return h.writer.InsertOrderFact(ctx, row)
	case *payloads.OrderPaidEvent:
		row := orderFact(base, p.OrderID, p.OrderNumber, p.CustomerID)
		row.TotalAmount = amount(p.TotalAmount)
		row.Currency = nullString(p.Currency)
		return h.writer.InsertOrderFact(ctx, row)
	case *payloads.OrderPaymentFailedEvent:
		row := orderFact(base, p.OrderID, p.OrderNumber, p.CustomerID)
		row.Reason = nullString(p.Reason)
		return h.writer.InsertOrderFact(ctx, row)
	case *payloads.OrderCancelledEvent:
		row := orderFact(base, p.OrderID, p.OrderNumber, p.CustomerID)
		row.Reason = nullString(p.Reason)
		return h.writer.InsertOrderFact(ctx, row)
	case *payloads.OrderExpiredEvent:
		row := orderFact(base, p.OrderID, p.OrderNumber, p.CustomerID)
		row.Reason = nullString("reservation_expired")
		return h.writer.InsertOrderFact(ctx, row)
	case *payloads.OrderShippedEvent:
		return h.writer.InsertOrderFact(ctx, orderFact(base, p.OrderID, p.OrderNumber, p.CustomerID))
	case *payloads.OrderDeliveredEvent:
		return h.writer.InsertOrderFact(ctx, orderFact(base, p.OrderID, p.OrderNumber, p.CustomerID))
	default:
		return nil
	}
}

func movementRow(base OrderFactRow, p *payloads.InventoryMovementEvent) MovementRow {
	row := MovementRow{
		EventID:        base.EventID,
		EventType:      base.EventType,
		OccurredAt:     base.OccurredAt,
		RecordID:       p.RecordID.String(),
		VariantID:      p.VariantID.String(),
		RecordType:     string(p.Type),
		Quantity:       int64(abs(p.QuantityChange)),
		QuantityChange: int64(p.QuantityChange),
		StockBefore:    int64(p.QuantityBefore),
		StockAfter:     int64(p.QuantityAfter),
	}
	if !p.OccurredAt.IsZero() {
		row.OccurredAt = p.OccurredAt.UTC()
	}
	if p.OrderID != nil {
		row.OrderID = nullString(p.OrderID.String())
	}
	if p.CreatedBy != nil {
		row.ActorID = nullString(p.CreatedBy.String())
	}
	return row
}

func orderFact(base OrderFactRow, orderID uuid.UUID, number string, customerID uuid.UUID) OrderFactRow {
	base.OrderID = orderID.String()
	base.OrderNumber = number
	base.CustomerID = customerID.String()
	return base
}

func amount(value string) *big.Rat {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return nil
	}
	return parsed.Rat()
}

func nullString(value string) cbigquery.NullString {
	if value == "" {
		return cbigquery.NullString{}
	}
	return cbigquery.NullString{StringVal: value, Valid: true}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
