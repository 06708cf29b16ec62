package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/sareehub-backend/pkg/logger"
	"github.com/angelmondragon/sareehub-backend/pkg/metrics"
)

const (
	defaultInterval     = time.Minute
	defaultRefreshEvery = defaultLockTTL / 3
)

// errLockLost stops a cycle when another replica took over the lease.
var errLockLost = errors.New("cron lock lost mid-cycle")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronMetrics
	Interval time.Duration
	// RefreshEvery is how often the lease is extended while a job runs.
	RefreshEvery time.Duration
}

// Service ticks every Interval and runs the due jobs while holding Lock.
type Service struct {
	logg     *logger.Logger
	jobs     []Job
	lock     Lock
	metrics  *metrics.CronMetrics
	interval time.Duration
	refresh  time.Duration
	lastRun  map[string]time.Time
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	if params.Registry == nil {
		return nil, errors.New("job registry required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	refresh := params.RefreshEvery
	if refresh <= 0 {
		refresh = defaultRefreshEvery
	}
	return &Service{
		logg:     params.Logger,
		refresh:  refresh,
		jobs:     params.Registry.Jobs(),
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		lastRun:  make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// Run executes one cycle immediately, then one per tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) (errs error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !locked {
		s.logg.Debug(ctx, "cron lock held elsewhere; skipping cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	for i, job := range s.jobs {
		if !s.due(job) {
			continue
		}
		// the lease was taken at cycle start; extend it before each later job
		if i > 0 {
			held, err := s.lock.Refresh(ctx)
			if err != nil {
				return multierr.Append(errs, err)
			}
			if !held {
				return multierr.Append(errs, errLockLost)
			}
		}
		err := s.runJob(ctx, job)
		if errors.Is(err, errLockLost) {
			return multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	return errs
}

func (s *Service) due(job Job) bool {
	p, ok := job.(Periodic)
	if !ok || p.Every() <= 0 {
		return true
	}
	last, seen := s.lastRun[job.Name()]
	return !seen || s.now().Sub(last) >= p.Every()
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobCtx := s.logg.WithFields(runCtx, map[string]any{"job": job.Name(), "event": "cron.job"})
	started := s.now()
	s.lastRun[job.Name()] = started

	leaseLost := s.keepLease(jobCtx, cancel)
	processed, err := job.Run(jobCtx)
	cancel()
	if <-leaseLost {
		err = multierr.Append(err, errLockLost)
	}
	took := s.now().Sub(started)
	s.metrics.ObserveRun(job.Name(), took, processed, err)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"duration_ms": took.Milliseconds(),
		"processed":   processed,
	})
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return err
	}
	s.logg.Debug(jobCtx, "cron job completed")
	return nil
}

// keepLease extends the lock every s.refresh until ctx ends. If the lease is
// lost it cancels the job. The returned channel yields once the refresher has
// exited, reporting whether the lease was lost.
func (s *Service) keepLease(ctx context.Context, cancelJob context.CancelFunc) <-chan bool {
	lost := make(chan bool, 1)
	go func() {
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				lost <- false
				return
			case <-ticker.C:
			}
			held, err := s.lock.Refresh(ctx)
			if ctx.Err() != nil {
				lost <- false
				return
			}
			if err != nil || !held {
				if err != nil {
					s.logg.Error(ctx, "cron lease refresh failed", err)
				}
				cancelJob()
				lost <- true
				return
			}
		}
	}()
	return lost
}
