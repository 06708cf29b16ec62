package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

// StockAdjustment is the admin-facing trail of manual stock edits.
type StockAdjustment struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	VariantID         uuid.UUID                 `gorm:"column:variant_id;type:uuid;not null;index"`
	InventoryRecordID uuid.UUID                 `gorm:"column:inventory_record_id;type:uuid;not null"`
	AdjustedBy        uuid.UUID                 `gorm:"column:adjusted_by;type:uuid;not null"`
	Type              enums.InventoryRecordType `gorm:"column:type;type:text;not null"`
	QuantityChange    int                       `gorm:"column:quantity_change;not null"`
	PreviousQuantity  int                       `gorm:"column:previous_quantity;not null"`
	NewQuantity       int                       `gorm:"column:new_quantity;not null"`
	Notes             *string                   `gorm:"column:notes"`
	ReferenceNumber   *string                   `gorm:"column:reference_number"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
}

func (StockAdjustment) TableName() string { return "stock_adjustments" }

func (s *StockAdjustment) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}
