package chain

import (
	"context"
	"math/rand"
	"time"
)

// WithRetry runs fn, backing off exponentially with jitter between
// attempts. Retry policy belongs to callers; the client itself never
// loops internally.
func WithRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		// Jitter up to half the current delay keeps concurrent retriers
		// from hammering the endpoint in lockstep.
		sleep := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
