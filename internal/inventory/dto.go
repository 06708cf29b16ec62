package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

// UnlimitedStock is reported as available stock for variants that do not track inventory.
const UnlimitedStock = 999999

// Availability is the computed stock view of one variant.
type Availability struct {
	VariantID      uuid.UUID `json:"variant_id"`
	TotalStock     int       `json:"total_stock"`
	ReservedStock  int       `json:"reserved_stock"`
	AvailableStock int       `json:"available_stock"`
	TrackInventory bool      `json:"track_inventory"`
}

// ReserveInput holds stock for an order. ExpiresAt defaults to now plus the reservation TTL.
type ReserveInput struct {
	VariantID uuid.UUID  `json:"variant_id" validate:"required"`
	OrderID   uuid.UUID  `json:"order_id" validate:"required"`
	Quantity  int        `json:"quantity" validate:"required,gt=0"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// MovementInput is the body of commit and release.
type MovementInput struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	OrderID   uuid.UUID `json:"order_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,gt=0"`
}

// AdjustInput is an admin stock correction. Type is adjustment (default) or return.
type AdjustInput struct {
	VariantID       uuid.UUID                 `json:"variant_id" validate:"required"`
	QuantityChange  int                       `json:"quantity_change" validate:"required"`
	Type            enums.InventoryRecordType `json:"type,omitempty" validate:"omitempty,oneof=adjustment return"`
	Notes           *string                   `json:"notes,omitempty" validate:"omitempty,max=500"`
	ReferenceNumber *string                   `json:"reference_number,omitempty" validate:"omitempty,max=100"`
}

// Movement reports the outcome of a ledger operation. Recorded is false for untracked variants.
type Movement struct {
	RecordID       *uuid.UUID                `json:"record_id,omitempty"`
	VariantID      uuid.UUID                 `json:"variant_id"`
	OrderID        *uuid.UUID                `json:"order_id,omitempty"`
	Type           enums.InventoryRecordType `json:"type"`
	Quantity       int                       `json:"quantity"`
	QuantityChange int                       `json:"quantity_change"`
	StockBefore    int                       `json:"stock_before"`
	StockAfter     int                       `json:"stock_after"`
	ExpiresAt      *time.Time                `json:"expires_at,omitempty"`
	Recorded       bool                      `json:"recorded"`
}

// LedgerEntry is the API view of an inventory row.
type LedgerEntry struct {
	ID              uuid.UUID                 `json:"id"`
	VariantID       uuid.UUID                 `json:"variant_id"`
	OrderID         *uuid.UUID                `json:"order_id,omitempty"`
	Type            enums.InventoryRecordType `json:"type"`
	QuantityChange  int                       `json:"quantity_change"`
	QuantityBefore  int                       `json:"quantity_before"`
	QuantityAfter   int                       `json:"quantity_after"`
	Notes           *string                   `json:"notes,omitempty"`
	ReferenceNumber *string                   `json:"reference_number,omitempty"`
	ExpiresAt       *time.Time                `json:"expires_at,omitempty"`
	CreatedBy       *uuid.UUID                `json:"created_by,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
}

func toLedgerEntry(r models.InventoryRecord) LedgerEntry {
	return LedgerEntry{
		ID:              r.ID,
		VariantID:       r.VariantID,
		OrderID:         r.OrderID,
		Type:            r.Type,
		QuantityChange:  r.QuantityChange,
		QuantityBefore:  r.QuantityBefore,
		QuantityAfter:   r.QuantityAfter,
		Notes:           r.Notes,
		ReferenceNumber: r.ReferenceNumber,
		ExpiresAt:       r.ExpiresAt,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
	}
}

func movementFromRecord(r models.InventoryRecord, quantity int) *Movement {
	id := r.ID
	return &Movement{
		RecordID:       &id,
		VariantID:      r.VariantID,
		OrderID:        r.OrderID,
		Type:           r.Type,
		Quantity:       quantity,
		QuantityChange: r.QuantityChange,
		StockBefore:    r.QuantityBefore,
		StockAfter:     r.QuantityAfter,
		ExpiresAt:      r.ExpiresAt,
		Recorded:       true,
	}
}

func untrackedMovement(v *models.Variant, orderID uuid.UUID, kind enums.InventoryRecordType, quantity int) *Movement {
	oid := orderID
	return &Movement{
		VariantID:   v.ID,
		OrderID:     &oid,
		Type:        kind,
		Quantity:    quantity,
		StockBefore: v.StockQuantity,
		StockAfter:  v.StockQuantity,
	}
}
