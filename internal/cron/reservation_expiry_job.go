package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/sareehub-backend/internal/orders"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

const (
	defaultExpiryBatch  = 100
	defaultExpiryRounds = 10
)

// reservationExpirer is the slice of the order service the sweep needs.
type reservationExpirer interface {
	ExpireReservations(ctx context.Context, now time.Time, limit int) (orders.ExpiryResult, error)
}

type ReservationExpiryJobParams struct {
	Logger    *logger.Logger
	Orders    reservationExpirer
	BatchSize int
	MaxRounds int
}

// NewReservationExpiryJob builds the job that cancels unpaid orders whose reservations lapsed.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	rounds := params.MaxRounds
	if rounds <= 0 {
		rounds = defaultExpiryRounds
	}
	return &reservationExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		batch:  batch,
		rounds: rounds,
		now:    time.Now,
	}, nil
}

type reservationExpiryJob struct {
	logg   *logger.Logger
	orders reservationExpirer
	batch  int
	rounds int
	now    func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

// Run sweeps in batches until a short batch comes back or the round cap is hit.
func (j *reservationExpiryJob) Run(ctx context.Context) (int, error) {
	now := j.now().UTC()
	var (
		total orders.ExpiryResult
		errs  error
	)
	for round := 0; round < j.rounds; round++ {
		res, err := j.orders.ExpireReservations(ctx, now, j.batch)
		total.Scanned += res.Scanned
		total.Expired += res.Expired
		total.Skipped += res.Skipped
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		// Failed orders stay selectable; stop rather than rescan them this tick.
		if err != nil || res.Scanned < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned": total.Scanned,
		"expired": total.Expired,
		"skipped": total.Skipped,
	})
	if total.Expired > 0 {
		j.logg.Info(logCtx, "expired reservations released")
	} else {
		j.logg.Debug(logCtx, "no expired reservations")
	}
	return total.Expired, errs
}
