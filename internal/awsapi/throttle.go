package awsapi

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle paces AWS API calls with a token bucket.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle creates a throttle allowing rps calls per second with a burst of 2x rps.
// A non-positive rps disables throttling.
func NewThrottle(rps int) *Throttle {
	if rps <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Limit(rps), rps*2),
	}
}

// Wait blocks until the next call is allowed. A nil Throttle never blocks.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}

// Allow reports whether a call may happen now without blocking.
func (t *Throttle) Allow() bool {
	if t == nil {
		return true
	}
	return t.limiter.Allow()
}
