// Package idempotency tracks which outbox events each consumer has already applied.
//
// An event moves through two states under a consumer-scoped key: a short
// "claimed" lease taken before the handler runs, and a long-lived "done"
// marker written once the handler succeeds. A consumer that dies mid-handler
// therefore only blocks redelivery until the lease lapses.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	stateClaimed = "claimed"
	stateDone    = "done"

	// DefaultLease bounds how long an in-flight claim hides an event from redelivery.
	DefaultLease = 5 * time.Minute
)

// Store is the subset of the redis client the ledger writes through.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Ledger records claimed and completed events per consumer.
type Ledger struct {
	store Store
	lease time.Duration
	keep  time.Duration
}

// NewLedger keeps completed markers for retention. The claim lease never
// outlives the retention window.
func NewLedger(store Store, retention time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("idempotency store required")
	}
	if retention <= 0 {
		return nil, errors.New("idempotency retention must be positive")
	}
	lease := DefaultLease
	if retention < lease {
		lease = retention
	}
	return &Ledger{store: store, lease: lease, keep: retention}, nil
}

// Claim reserves eventID for consumer. It returns false when the event is
// already completed or another delivery currently holds the lease.
func (l *Ledger) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	ok, err := l.store.SetNX(ctx, key, stateClaimed, l.lease)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return ok, nil
}

// Commit marks a claimed event done for the full retention window.
func (l *Ledger) Commit(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := l.store.Set(ctx, key, stateDone, l.keep); err != nil {
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

// Release drops a claim so the next delivery is processed again.
func (l *Ledger) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := l.key(consumer, eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

func (l *Ledger) key(consumer string, eventID uuid.UUID) (string, error) {
	consumer = strings.TrimSpace(consumer)
	if consumer == "" {
		return "", errors.New("consumer name required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id required")
	}
	return l.store.IdempotencyKey("consumer:"+consumer, eventID.String()), nil
}
