package orchestrator

import (
	"context"
	"math"
	"time"
)

// Backoff computes the wait between retries of the same provider:
// min(Ceiling, Base * 2^attempt).
type Backoff struct {
	Base    time.Duration
	Ceiling time.Duration
}

// DefaultBackoff is 1s base, 10s ceiling.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Ceiling: 10 * time.Second}
}

// DelayFor returns the delay after the given 1-based attempt number.
// Attempts below 1 are treated as 1.
func (b Backoff) DelayFor(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := b.Base
	for i := 0; i < attempt; i++ {
		if b.Ceiling > 0 && delay >= b.Ceiling {
			return b.Ceiling
		}
		if delay > math.MaxInt64/2 {
			return math.MaxInt64
		}
		delay *= 2
	}
	if b.Ceiling > 0 && delay > b.Ceiling {
		return b.Ceiling
	}
	return delay
}

// sleepWithContext sleeps for d, returning ctx.Err() early on cancellation.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
