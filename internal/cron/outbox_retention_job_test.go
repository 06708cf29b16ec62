package cron

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/sareehub-backend/pkg/db/models"
	"github.com/angelmondragon/sareehub-backend/pkg/enums"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/outbox"
)

func newRetentionJob(t *testing.T, db txRunner, repo outboxPurger, chunk int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         db,
		Repository: repo,
		ChunkSize:  chunk,
	})
	require.NoError(t, err)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionLoopsUntilShortChunk(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &scriptedPurger{chunks: []int64{5, 5, 2}}
	job := newRetentionJob(t, passthroughTx{}, repo, 5)
	job.now = func() time.Time { return now }

	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, deleted)
	assert.Equal(t, 3, repo.calls)
	assert.True(t, repo.cutoff.Equal(now.Add(-defaultOutboxMaxAge)))
	assert.Equal(t, defaultTerminalAttempts, repo.terminal)
	assert.Equal(t, outboxRetentionFrequency, job.Every())
}

func TestOutboxRetentionKeepsCountOnError(t *testing.T) {
	repo := &scriptedPurger{chunks: []int64{4}, err: errors.New("boom")}
	job := newRetentionJob(t, passthroughTx{}, repo, 4)

	deleted, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, deleted)
}

func TestOutboxRetentionDeletesOnlyFinishedRows(t *testing.T) {
	client := dbtest.New(t)
	now := time.Now().UTC()
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	seed := func(createdAt time.Time, publishedAt *time.Time, attempts int) uuid.UUID {
		row := models.OutboxEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     createdAt,
			PublishedAt:   publishedAt,
			AttemptCount:  attempts,
		}
		require.NoError(t, client.DB().Create(&row).Error)
		return row.ID
	}
	seed(old, &old, 1)
	seed(old.Add(time.Minute), &old, 1)
	seed(old, nil, defaultTerminalAttempts)
	pendingOld := seed(old, nil, 2)
	publishedRecent := seed(recent, &recent, 1)

	job := newRetentionJob(t, client, outbox.NewRepository(client.DB()), 2)
	job.now = func() time.Time { return now }
	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	var remaining []uuid.UUID
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{pendingOld, publishedRecent}, remaining)
}

// scriptedPurger returns chunks in order, then err (or zero once exhausted).
type scriptedPurger struct {
	chunks   []int64
	err      error
	calls    int
	cutoff   time.Time
	terminal int
}

func (s *scriptedPurger) PurgeBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, terminalAttempts, _ int) (int64, error) {
	s.calls++
	s.cutoff = cutoff
	s.terminal = terminalAttempts
	if len(s.chunks) == 0 {
		return 0, s.err
	}
	n := s.chunks[0]
	s.chunks = s.chunks[1:]
	return n, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
