package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

// pollBackoff spaces out polls: the base interval when idle, doubling up to
// max while batches keep failing.
type pollBackoff struct {
	base, max time.Duration
	current   time.Duration
}

func (b *pollBackoff) idle() time.Duration {
	b.current = 0
	return jittered(b.base)
}

func (b *pollBackoff) failure() time.Duration {
	b.current = min(max(b.current*2, b.base), b.max)
	return jittered(b.current)
}

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
