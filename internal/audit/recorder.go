// Package audit persists the admin-facing trail of privileged and corrective actions.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/auth"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

// Entry is one audit_logs row before persistence.
type Entry struct {
	Actor      auth.Actor
	Action     enums.AuditAction
	EntityType enums.AuditEntityType
	EntityID   uuid.UUID
	Metadata   map[string]any
}

// Recorder writes audit rows on the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	RecordAdjustment(ctx context.Context, tx *gorm.DB, adj *models.StockAdjustment) error
}

type recorder struct{}

func NewRecorder() Recorder {
	return recorder{}
}

func (recorder) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.EntityID == uuid.Nil {
		return errors.New("audit entity id required")
	}
	var meta json.RawMessage
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
		meta = raw
	}
	row := models.AuditLog{
		ActorID:    entry.Actor.UserIDPtr(),
		ActorRole:  string(entry.Actor.Role),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   meta,
	}
	if row.ActorRole == "" {
		row.ActorRole = string(auth.SystemActor.Role)
	}
	return tx.WithContext(ctx).Create(&row).Error
}

func (recorder) RecordAdjustment(ctx context.Context, tx *gorm.DB, adj *models.StockAdjustment) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if adj == nil || adj.InventoryRecordID == uuid.Nil {
		return errors.New("stock adjustment must reference a ledger row")
	}
	return tx.WithContext(ctx).Create(adj).Error
}
