package warehouse

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces requests evenly so a burst of paginated calls stays
// under the warehouse API's request budget.
type RateLimiter struct {
	mu            sync.Mutex
	nextAllowedAt time.Time
	interval      time.Duration
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{interval: time.Second / time.Duration(requestsPerSecond)}
}

// WaitTurn blocks until the caller's slot comes up or ctx is cancelled. A
// cancelled wait still consumes the slot.
func (r *RateLimiter) WaitTurn(ctx context.Context) error {
	r.mu.Lock()
	now := time.Now()
	scheduled := now
	if r.nextAllowedAt.After(now) {
		scheduled = r.nextAllowedAt
	}
	r.nextAllowedAt = scheduled.Add(r.interval)
	r.mu.Unlock()

	sleep := time.Until(scheduled)
	if sleep <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
