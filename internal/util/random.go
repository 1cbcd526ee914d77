package util

import (
	"context"
	"math/rand/v2"
	"time"
)

// RandomDuration returns a uniformly distributed duration in [min, max).
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)))
}

// Backoff returns the wait before retry number attempt (0-based):
// 2^attempt seconds plus 100-500ms of jitter.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 10 {
		attempt = 10
	}
	base := time.Duration(1<<attempt) * time.Second
	return base + RandomDuration(100*time.Millisecond, 500*time.Millisecond)
}

// SleepContext waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
func SleepContext(ctx context.Context, d time.Duration) error {
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
