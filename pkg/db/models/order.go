package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/types"
)

// Order is the checkout aggregate; Items are loaded on demand.
type Order struct {
	ID                   uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber          string                 `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID           uuid.UUID              `gorm:"column:customer_id;type:uuid;not null;index"`
	Status               enums.OrderStatus      `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus        enums.PaymentStatus    `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaymentMethod        *string                `gorm:"column:payment_method"`
	PaymentTransactionID *string                `gorm:"column:payment_transaction_id"`
	TotalAmount          decimal.Decimal        `gorm:"column:total_amount;type:numeric(12,2);not null"`
	Currency             string                 `gorm:"column:currency;not null;default:'INR'"`
	ShippingAddress      *types.ShippingAddress `gorm:"column:shipping_address;type:jsonb"`
	Notes                *string                `gorm:"column:notes"`
	TrackingNumber       *string                `gorm:"column:tracking_number"`
	Carrier              *string                `gorm:"column:carrier"`
	CancelReason         *string                `gorm:"column:cancel_reason"`
	PaidAt               *time.Time             `gorm:"column:paid_at"`
	ShippedAt            *time.Time             `gorm:"column:shipped_at"`
	DeliveredAt          *time.Time             `gorm:"column:delivered_at"`
	CancelledAt          *time.Time             `gorm:"column:cancelled_at"`
	CreatedAt            time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time              `gorm:"column:updated_at;autoUpdateTime"`

	Items []OrderItem `gorm:"foreignKey:OrderID;references:ID"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// HoldsStock reports whether the order's outstanding reservations still count against availability.
func (o Order) HoldsStock() bool {
	return (o.Status == enums.OrderStatusPending || o.Status == enums.OrderStatusConfirmed) &&
		o.PaymentStatus == enums.PaymentStatusPending
}
