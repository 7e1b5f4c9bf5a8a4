package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle paces calls to one external service across all goroutines that
// share it. Every call waits for a token (one per delay), and Pause holds
// every caller back until the pause expires.
type Throttle struct {
	limiter *rate.Limiter

	mu          sync.Mutex
	pausedUntil time.Time
	pauses      int
}

// NewThrottle returns a throttle admitting one call per delay. A delay <= 0
// disables pacing; Pause still applies.
func NewThrottle(delay time.Duration) *Throttle {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Throttle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until any active pause has expired and a token is available.
func (t *Throttle) Wait(ctx context.Context) error {
	for {
		t.mu.Lock()
		wait := time.Until(t.pausedUntil)
		t.mu.Unlock()
		if wait <= 0 {
			break
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return t.limiter.Wait(ctx)
}

// Pause blocks every caller for at least d. Overlapping pauses extend to the
// latest deadline rather than stacking.
func (t *Throttle) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	until := time.Now().Add(d)
	t.mu.Lock()
	if until.After(t.pausedUntil) {
		t.pausedUntil = until
	}
	t.pauses++
	t.mu.Unlock()
}

// Pauses returns how many times Pause has been called.
func (t *Throttle) Pauses() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pauses
}
