package freshdesk

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit is the number of calls allowed per interval
	DefaultRateLimit = 1
	// DefaultRateInterval is the window length for DefaultRateLimit
	DefaultRateInterval = 2 * time.Second
)

// RateLimiter spaces outgoing calls so that at most limit calls start in any
// interval. It is safe for concurrent use.
type RateLimiter struct {
	limiter  *rate.Limiter
	limit    int
	interval time.Duration
}

// NewRateLimiter creates a limiter granting limit calls per interval. Non
// positive values fall back to the defaults.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if interval <= 0 {
		interval = DefaultRateInterval
	}

	// burst == limit bounds the number of grants remembered by the bucket
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Every(interval/time.Duration(limit)), limit),
		limit:    limit,
		interval: interval,
	}
}

// Acquire blocks until the next call may start. It only fails when ctx is
// done first.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Limit returns the configured calls per interval
func (r *RateLimiter) Limit() int {
	return r.limit
}

// Interval returns the configured window length
func (r *RateLimiter) Interval() time.Duration {
	return r.interval
}
