package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/auth"
	"github.com/angelmondragon/sareehub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

func TestRecordWritesAuditLog(t *testing.T) {
	client := dbtest.New(t)
	rec := NewRecorder()
	ctx := context.Background()
	adminID := uuid.New()
	orderID := uuid.New()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return rec.Record(ctx, tx, Entry{
			Actor:      auth.Actor{UserID: adminID, Role: enums.MemberRoleAdmin},
			Action:     enums.AuditActionOrderShipped,
			EntityType: enums.AuditEntityOrder,
			EntityID:   orderID,
			Metadata:   map[string]any{"carrier": "BlueDart"},
		})
	})
	require.NoError(t, err)

	var row models.AuditLog
	require.NoError(t, client.DB().First(&row, "entity_id = ?", orderID).Error)
	require.Equal(t, enums.AuditActionOrderShipped, row.Action)
	require.Equal(t, "admin", row.ActorRole)
	require.NotNil(t, row.ActorID)
	require.Equal(t, adminID, *row.ActorID)
}

func TestRecordSystemActor(t *testing.T) {
	client := dbtest.New(t)
	rec := NewRecorder()
	ctx := context.Background()
	orderID := uuid.New()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return rec.Record(ctx, tx, Entry{
			Actor:      auth.SystemActor,
			Action:     enums.AuditActionReservationExpiry,
			EntityType: enums.AuditEntityOrder,
			EntityID:   orderID,
		})
	}))

	var row models.AuditLog
	require.NoError(t, client.DB().First(&row, "entity_id = ?", orderID).Error)
	require.Nil(t, row.ActorID)
	require.Equal(t, "system", row.ActorRole)
}

func TestRecordRequiresTransactionAndEntity(t *testing.T) {
	rec := NewRecorder()
	require.Error(t, rec.Record(context.Background(), nil, Entry{EntityID: uuid.New()}))

	client := dbtest.New(t)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return rec.Record(context.Background(), tx, Entry{Action: enums.AuditActionOrderShipped})
	})
	require.Error(t, err)
}

func TestRecordAdjustmentRequiresLedgerRow(t *testing.T) {
	client := dbtest.New(t)
	rec := NewRecorder()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return rec.RecordAdjustment(context.Background(), tx, &models.StockAdjustment{VariantID: uuid.New()})
	})
	require.Error(t, err)
}
