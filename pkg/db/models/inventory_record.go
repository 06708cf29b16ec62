package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

// InventoryRecord is one immutable row of the stock ledger.
type InventoryRecord struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	VariantID       uuid.UUID                 `gorm:"column:variant_id;type:uuid;not null;index:idx_inventory_variant_order,priority:1"`
	OrderID         *uuid.UUID                `gorm:"column:order_id;type:uuid;index:idx_inventory_variant_order,priority:2"`
	Type            enums.InventoryRecordType `gorm:"column:type;type:text;not null"`
	QuantityChange  int                       `gorm:"column:quantity_change;not null"`
	QuantityBefore  int                       `gorm:"column:quantity_before;not null"`
	QuantityAfter   int                       `gorm:"column:quantity_after;not null"`
	Notes           *string                   `gorm:"column:notes"`
	ReferenceNumber *string                   `gorm:"column:reference_number"`
	ExpiresAt       *time.Time                `gorm:"column:expires_at"`
	CreatedBy       *uuid.UUID                `gorm:"column:created_by;type:uuid"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryRecord) TableName() string { return "inventory" }

func (r *InventoryRecord) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
