package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/db"
	"github.com/angelmondragon/sareehub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
)

func parkEvent(t *testing.T, client *db.Client, eventType enums.OutboxEventType, reason enums.OutboxDLQErrorReason, failedAt time.Time) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     eventType,
		AggregateType: eventType.Aggregate(),
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  10,
	}
	require.NoError(t, client.DB().Create(&row).Error)
	msg := "publish failed"
	require.NoError(t, NewDLQRepository(client.DB()).InsertTx(client.DB(), models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      failedAt,
	}))
	return row
}

func TestDLQListFiltersNewestFirst(t *testing.T) {
	client := dbtest.New(t)
	repo := NewDLQRepository(client.DB())
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	older := parkEvent(t, client, enums.EventOrderPaid, enums.OutboxDLQReasonMaxAttempts, base)
	newer := parkEvent(t, client, enums.EventOrderPaid, enums.OutboxDLQReasonNonRetryable, base.Add(time.Hour))
	parkEvent(t, client, enums.EventInventoryAdjusted, enums.OutboxDLQReasonMaxAttempts, base.Add(2*time.Hour))

	rows, err := repo.List(context.Background(), DLQFilter{EventType: enums.EventOrderPaid})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, newer.ID, rows[0].EventID)
	assert.Equal(t, older.ID, rows[1].EventID)

	rows, err = repo.List(context.Background(), DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventInventoryAdjusted, rows[0].EventType)
}

func TestDLQInsertIgnoresDuplicates(t *testing.T) {
	client := dbtest.New(t)
	row := parkEvent(t, client, enums.EventOrderCreated, enums.OutboxDLQReasonMaxAttempts, time.Now())

	dup := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		FailedAt:      time.Now(),
	}
	require.NoError(t, NewDLQRepository(client.DB()).InsertTx(client.DB(), dup))

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxDLQ{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRedriveResetsParkedRow(t *testing.T) {
	client := dbtest.New(t)
	repo := NewDLQRepository(client.DB())
	row := parkEvent(t, client, enums.EventOrderCancelled, enums.OutboxDLQReasonMaxAttempts, time.Now())

	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return repo.Redrive(context.Background(), tx, row.ID)
	}))

	var got models.OutboxEvent
	require.NoError(t, client.DB().First(&got, "id = ?", row.ID).Error)
	assert.Zero(t, got.AttemptCount)
	assert.Nil(t, got.LastError)

	rows, err := repo.List(context.Background(), DLQFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRedriveRestoresDeletedRow(t *testing.T) {
	client := dbtest.New(t)
	repo := NewDLQRepository(client.DB())
	row := parkEvent(t, client, enums.EventInventoryReserved, enums.OutboxDLQReasonNonRetryable, time.Now())
	require.NoError(t, client.DB().Delete(&models.OutboxEvent{}, "id = ?", row.ID).Error)

	require.NoError(t, repo.Redrive(context.Background(), client.DB(), row.ID))

	var restored models.OutboxEvent
	require.NoError(t, client.DB().First(&restored, "id = ?", row.ID).Error)
	assert.Equal(t, row.EventType, restored.EventType)
	assert.Equal(t, row.AggregateID, restored.AggregateID)
	assert.JSONEq(t, string(row.Payload), string(restored.Payload))
	assert.Nil(t, restored.PublishedAt)
}

func TestRedriveUnknownEvent(t *testing.T) {
	client := dbtest.New(t)
	err := NewDLQRepository(client.DB()).Redrive(context.Background(), client.DB(), uuid.New())
	assert.True(t, errors.Is(err, ErrDLQEntryNotFound))
}
