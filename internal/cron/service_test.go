package cron

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
)

type fakeLock struct {
	mu        sync.Mutex
	held      bool
	lost      bool
	refreshes int
	released  int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Refresh(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return !f.lost, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name      string
	err       error
	every     time.Duration
	processed int
	runs      int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) (int, error) {
	t.runs++
	return t.processed, t.err
}

func (f *fakeLock) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// funcJob runs an arbitrary body, for jobs that outlive a lease refresh.
type funcJob struct {
	name string
	run  func(ctx context.Context) (int, error)
}

func (f funcJob) Name() string { return f.name }

func (f funcJob) Run(ctx context.Context) (int, error) { return f.run(ctx) }

type periodicJob struct {
	testJob
}

func (p *periodicJob) Every() time.Duration { return p.every }

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleRunsAllJobsAndCombinesErrors(t *testing.T) {
	ok := &testJob{name: "success", processed: 3}
	failA := &testJob{name: "fail-a", err: errors.New("boom")}
	failB := &testJob{name: "fail-b", err: errors.New("bang")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, ok, failA, failB)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Contains(t, err.Error(), "fail-a: boom")
	assert.Contains(t, err.Error(), "fail-b: bang")

	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failA.runs)
	assert.Equal(t, 1, failB.runs)
	assert.Equal(t, 2, lock.refreshes, "lease extended before each job after the first")
	assert.Equal(t, 1, lock.released)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	svc := newTestService(t, &fakeLock{held: true}, job)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunCycleStopsWhenLeaseLost(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}
	lock := &fakeLock{lost: true}
	svc := newTestService(t, lock, first, second)

	err := svc.runCycle(context.Background())
	require.ErrorIs(t, err, errLockLost)
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs)
	assert.Equal(t, 1, lock.released)
}

func TestLongJobKeepsLeaseAlive(t *testing.T) {
	lock := &fakeLock{}
	slow := funcJob{name: "slow", run: func(ctx context.Context) (int, error) {
		deadline := time.After(time.Second)
		for lock.refreshCount() < 3 {
			select {
			case <-deadline:
				return 0, errors.New("lease never refreshed")
			case <-time.After(time.Millisecond):
			}
		}
		return 1, ctx.Err()
	}}
	svc := newTestService(t, lock, slow)
	svc.refresh = 5 * time.Millisecond

	require.NoError(t, svc.runCycle(context.Background()))
	assert.GreaterOrEqual(t, lock.refreshCount(), 3)
	assert.Equal(t, 1, lock.released)
}

func TestLeaseLostMidJobCancelsIt(t *testing.T) {
	lock := &fakeLock{lost: true}
	slow := funcJob{name: "slow", run: func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
			return 0, errors.New("job was not cancelled")
		}
	}}
	after := &testJob{name: "after"}
	svc := newTestService(t, lock, slow, after)
	svc.refresh = 5 * time.Millisecond

	err := svc.runCycle(context.Background())
	require.ErrorIs(t, err, errLockLost)
	assert.NotContains(t, err.Error(), "not cancelled")
	assert.Zero(t, after.runs)
	assert.Equal(t, 1, lock.released)
}

func TestPeriodicJobRunsOnlyWhenDue(t *testing.T) {
	every := &testJob{name: "every-tick"}
	daily := &periodicJob{testJob{name: "daily", every: 24 * time.Hour}}
	svc := newTestService(t, &fakeLock{}, every, daily)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.runCycle(context.Background()))
	now = now.Add(time.Hour)
	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 2, every.runs)
	assert.Equal(t, 1, daily.runs)

	now = now.Add(24 * time.Hour)
	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 2, daily.runs)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	svc := newTestService(t, &fakeLock{}, job)
	svc.interval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, job.runs, 2)
}

func TestNewServiceRequiresRegistry(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Lock:   &fakeLock{},
	})
	assert.Error(t, err)
}
