package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

type AuditLog struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ActorID    *uuid.UUID            `gorm:"column:actor_id;type:uuid"`
	ActorRole  string                `gorm:"column:actor_role;not null"`
	Action     enums.AuditAction     `gorm:"column:action;type:text;not null"`
	EntityType enums.AuditEntityType `gorm:"column:entity_type;type:text;not null"`
	EntityID   uuid.UUID             `gorm:"column:entity_id;type:uuid;not null;index"`
	Metadata   json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	assignID(&a.ID)
	return nil
}
