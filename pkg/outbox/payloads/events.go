package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

// OrderItemLine is one line of an order as carried in order events. Amounts are decimal strings.
type OrderItemLine struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
}

// OrderCreatedEvent is emitted once the order and its reservations are committed.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalAmount string          `json:"total_amount"`
	Currency    string          `json:"currency"`
	Items       []OrderItemLine `json:"items"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// OrderPaidEvent is emitted when a payment success webhook commits the order.
type OrderPaidEvent struct {
	OrderID          uuid.UUID   `json:"order_id"`
	OrderNumber      string      `json:"order_number"`
	CustomerID       uuid.UUID   `json:"customer_id"`
	TransactionID    string      `json:"transaction_id"`
	PaymentMethod    string      `json:"payment_method,omitempty"`
	TotalAmount      string      `json:"total_amount"`
	Currency         string      `json:"currency"`
	PaidAt           time.Time   `json:"paid_at"`
	CommitMismatches []uuid.UUID `json:"commit_mismatches,omitempty"`
}

// OrderPaymentFailedEvent is emitted when the gateway reports a failed payment.
type OrderPaymentFailedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerID    uuid.UUID `json:"customer_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

// OrderCancelledEvent covers customer, admin and payment-failure cancellations.
type OrderCancelledEvent struct {
	OrderID     uuid.UUID  `json:"order_id"`
	OrderNumber string     `json:"order_number"`
	CustomerID  uuid.UUID  `json:"customer_id"`
	CancelledBy *uuid.UUID `json:"cancelled_by,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CancelledAt time.Time  `json:"cancelled_at"`
	Restocked   bool       `json:"restocked"`
}

// OrderExpiredEvent is emitted by the reservation sweep.
type OrderExpiredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  uuid.UUID `json:"customer_id"`
	ExpiredAt   time.Time `json:"expired_at"`
}

type OrderShippedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	CustomerID     uuid.UUID `json:"customer_id"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Carrier        string    `json:"carrier,omitempty"`
	ShippedAt      time.Time `json:"shipped_at"`
}

type OrderDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  uuid.UUID `json:"customer_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// InventoryMovementEvent mirrors one ledger row for downstream consumers.
type InventoryMovementEvent struct {
	RecordID       uuid.UUID                 `json:"record_id"`
	VariantID      uuid.UUID                 `json:"variant_id"`
	OrderID        *uuid.UUID                `json:"order_id,omitempty"`
	Type           enums.InventoryRecordType `json:"type"`
	QuantityChange int                       `json:"quantity_change"`
	QuantityBefore int                       `json:"quantity_before"`
	QuantityAfter  int                       `json:"quantity_after"`
	CreatedBy      *uuid.UUID                `json:"created_by,omitempty"`
	OccurredAt     time.Time                 `json:"occurred_at"`
}

// LowStockEvent fires when availability drops to or below the configured threshold.
type LowStockEvent struct {
	VariantID uuid.UUID `json:"variant_id"`
	SKU       string    `json:"sku"`
	Available int       `json:"available"`
	Threshold int       `json:"threshold"`
}
