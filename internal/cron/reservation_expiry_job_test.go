package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/sareehub-backend/internal/orders"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

type fakeExpirer struct {
	results []orders.ExpiryResult
	errs    []error
	calls   int
	limits  []int
	nows    []time.Time
}

func (f *fakeExpirer) ExpireReservations(_ context.Context, now time.Time, limit int) (orders.ExpiryResult, error) {
	i := f.calls
	f.calls++
	f.limits = append(f.limits, limit)
	f.nows = append(f.nows, now)
	var res orders.ExpiryResult
	if i < len(f.results) {
		res = f.results[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return res, err
}

func newExpiryJob(t *testing.T, expirer *fakeExpirer, batch int) *reservationExpiryJob {
	t.Helper()
	job, err := NewReservationExpiryJob(ReservationExpiryJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		Orders:    expirer,
		BatchSize: batch,
		MaxRounds: 3,
	})
	require.NoError(t, err)
	return job.(*reservationExpiryJob)
}

func TestReservationExpiryJobDrainsFullBatches(t *testing.T) {
	expirer := &fakeExpirer{results: []orders.ExpiryResult{
		{Scanned: 2, Expired: 2},
		{Scanned: 2, Expired: 1, Skipped: 1},
		{Scanned: 1, Expired: 1},
	}}
	job := newExpiryJob(t, expirer, 2)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	expired, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, expired)
	assert.Equal(t, 3, expirer.calls)
	assert.Equal(t, []int{2, 2, 2}, expirer.limits)
	for _, n := range expirer.nows {
		assert.True(t, n.Equal(fixed))
	}
}

func TestReservationExpiryJobStopsAtRoundCap(t *testing.T) {
	full := orders.ExpiryResult{Scanned: 5, Expired: 5}
	expirer := &fakeExpirer{results: []orders.ExpiryResult{full, full, full, full}}
	job := newExpiryJob(t, expirer, 5)

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, expirer.calls)
}

func TestReservationExpiryJobReturnsErrors(t *testing.T) {
	expirer := &fakeExpirer{
		results: []orders.ExpiryResult{{Scanned: 2, Expired: 1}},
		errs:    []error{errors.New("expire order x: boom")},
	}
	job := newExpiryJob(t, expirer, 2)

	expired, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1, expirer.calls)
	assert.Equal(t, "reservation-expiry", job.Name())
}
