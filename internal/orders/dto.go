package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/types"
)

const (
	CancelReasonPaymentFailed      = "payment_failed"
	CancelReasonReservationExpired = "reservation_expired"
)

// CreateItemInput is one requested line. Duplicate variants are merged.
type CreateItemInput struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0,lte=1000"`
}

// CreateInput is the checkout request body.
type CreateInput struct {
	Items           []CreateItemInput      `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingAddress *types.ShippingAddress `json:"shipping_address,omitempty"`
	Notes           *string                `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// PaymentWebhookInput is the gateway-neutral payment notification.
type PaymentWebhookInput struct {
	OrderID              uuid.UUID           `json:"order_id" validate:"required"`
	PaymentStatus        enums.PaymentStatus `json:"payment_status" validate:"required,oneof=paid failed"`
	PaymentMethod        string              `json:"payment_method" validate:"omitempty,max=50"`
	PaymentTransactionID string              `json:"payment_transaction_id" validate:"omitempty,max=255"`
}

// PaymentResult reports what a webhook delivery did. Replayed deliveries change nothing.
type PaymentResult struct {
	Order            *OrderView  `json:"order"`
	Replayed         bool        `json:"replayed"`
	CommitMismatches []uuid.UUID `json:"commit_mismatches,omitempty"`
}

type CancelInput struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type ShipInput struct {
	TrackingNumber string  `json:"tracking_number" validate:"required,max=100"`
	Carrier        *string `json:"carrier,omitempty" validate:"omitempty,max=100"`
}

// ListFilters narrow the order list. CustomerID is forced for non-admin callers.
type ListFilters struct {
	CustomerID    *uuid.UUID
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
}

// ExpiryResult summarizes one reservation sweep.
type ExpiryResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
}

type OrderItemView struct {
	ID        uuid.UUID `json:"id"`
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	LineTotal string    `json:"line_total"`
}

// OrderView is the API representation of an order. Amounts are fixed two-decimal strings.
type OrderView struct {
	ID                   uuid.UUID              `json:"id"`
	OrderNumber          string                 `json:"order_number"`
	CustomerID           uuid.UUID              `json:"customer_id"`
	Status               enums.OrderStatus      `json:"status"`
	PaymentStatus        enums.PaymentStatus    `json:"payment_status"`
	PaymentMethod        *string                `json:"payment_method,omitempty"`
	PaymentTransactionID *string                `json:"payment_transaction_id,omitempty"`
	TotalAmount          string                 `json:"total_amount"`
	Currency             string                 `json:"currency"`
	ShippingAddress      *types.ShippingAddress `json:"shipping_address,omitempty"`
	Notes                *string                `json:"notes,omitempty"`
	TrackingNumber       *string                `json:"tracking_number,omitempty"`
	Carrier              *string                `json:"carrier,omitempty"`
	CancelReason         *string                `json:"cancel_reason,omitempty"`
	PaidAt               *time.Time             `json:"paid_at,omitempty"`
	ShippedAt            *time.Time             `json:"shipped_at,omitempty"`
	DeliveredAt          *time.Time             `json:"delivered_at,omitempty"`
	CancelledAt          *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
	Items                []OrderItemView        `json:"items"`
}

func toView(o *models.Order) *OrderView {
	if o == nil {
		return nil
	}
	items := make([]OrderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemView{
			ID:        it.ID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice.StringFixed(2),
			LineTotal: it.LineTotal().StringFixed(2),
		})
	}
	return &OrderView{
		ID:                   o.ID,
		OrderNumber:          o.OrderNumber,
		CustomerID:           o.CustomerID,
		Status:               o.Status,
		PaymentStatus:        o.PaymentStatus,
		PaymentMethod:        o.PaymentMethod,
		PaymentTransactionID: o.PaymentTransactionID,
		TotalAmount:          o.TotalAmount.StringFixed(2),
		Currency:             o.Currency,
		ShippingAddress:      o.ShippingAddress,
		Notes:                o.Notes,
		TrackingNumber:       o.TrackingNumber,
		Carrier:              o.Carrier,
		CancelReason:         o.CancelReason,
		PaidAt:               o.PaidAt,
		ShippedAt:            o.ShippedAt,
		DeliveredAt:          o.DeliveredAt,
		CancelledAt:          o.CancelledAt,
		CreatedAt:            o.CreatedAt,
		UpdatedAt:            o.UpdatedAt,
		Items:                items,
	}
}
