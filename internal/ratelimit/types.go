package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter returns how long the caller must wait before the window resets.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || r.Reset.IsZero() || !r.Reset.After(now) {
		return 0
	}
	return r.Reset.Sub(now)
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// windowStart returns the start of the fixed window containing now, in unix seconds.
func windowStart(now time.Time, window time.Duration) (int64, int64) {
	size := int64(window / time.Second)
	if size <= 0 {
		size = 1
	}
	sec := now.Unix()
	return sec - sec%size, size
}
