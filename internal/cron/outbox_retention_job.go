package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

const (
	defaultOutboxMaxAge      = 30 * 24 * time.Hour
	defaultTerminalAttempts  = 10
	defaultOutboxPurgeChunk  = 1000
	outboxRetentionFrequency = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPurger
	// MaxAge is how long published and dead-lettered rows are kept.
	MaxAge time.Duration
	// TerminalAttempts is the attempt count at which the publisher parks a row.
	TerminalAttempts int
	ChunkSize        int
}

// NewOutboxRetentionJob prunes outbox rows the publisher is finished with.
// Each chunk commits on its own so a large backlog never holds one long lock.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db runner required")
	case p.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:             p.Logger,
		db:               p.DB,
		repo:             p.Repository,
		maxAge:           p.MaxAge,
		terminalAttempts: p.TerminalAttempts,
		chunk:            p.ChunkSize,
		now:              time.Now,
	}
	if job.maxAge <= 0 {
		job.maxAge = defaultOutboxMaxAge
	}
	if job.terminalAttempts <= 0 {
		job.terminalAttempts = defaultTerminalAttempts
	}
	if job.chunk <= 0 {
		job.chunk = defaultOutboxPurgeChunk
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg             *logger.Logger
	db               txRunner
	repo             outboxPurger
	maxAge           time.Duration
	terminalAttempts int
	chunk            int
	now              func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return outboxRetentionFrequency }

func (j *outboxRetentionJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.maxAge)
	var total, chunks int
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.PurgeBefore(ctx, tx, cutoff, j.terminalAttempts, j.chunk)
			deleted = n
			return err
		})
		if err != nil {
			return total, fmt.Errorf("purge outbox chunk %d: %w", chunks+1, err)
		}
		total += int(deleted)
		chunks++
		if deleted < int64(j.chunk) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff.Format(time.RFC3339),
		"rows_deleted": total,
		"chunks":       chunks,
	}), "outbox retention complete")
	return total, nil
}
