// ABOUTME: Per-backend rate limiting with retry-after override
// ABOUTME: Token bucket via x/time/rate, bounded waits, server hints win
package sync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound calls per backend. Acquire blocks
// cooperatively until a token is available or the configured maximum wait is
// exceeded, in which case it fails with a RateLimitError. A server-supplied
// retry-after hint always overrides the bucket's own refill schedule.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[Backend]*rateBudget
}

type rateBudget struct {
	limiter      *rate.Limiter
	maxWait      time.Duration
	backoffUntil time.Time
}

// RateConfig sets the budget for one backend.
type RateConfig struct {
	CallsPerMinute int
	Burst          int
	MaxWait        time.Duration
}

// NewRateLimiter creates a limiter with the given per-backend budgets.
func NewRateLimiter(configs map[Backend]RateConfig) *RateLimiter {
	buckets := make(map[Backend]*rateBudget, len(configs))
	for backend, cfg := range configs {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		buckets[backend] = &rateBudget{
			limiter: rate.NewLimiter(rate.Limit(float64(cfg.CallsPerMinute)/60.0), burst),
			maxWait: cfg.MaxWait,
		}
	}
	return &RateLimiter{buckets: buckets}
}

// Acquire takes one token for the backend, waiting up to the configured
// maximum. Unknown backends pass through unthrottled.
func (rl *RateLimiter) Acquire(ctx context.Context, backend Backend) error {
	rl.mu.Lock()
	budget, ok := rl.buckets[backend]
	if !ok {
		rl.mu.Unlock()
		return nil
	}
	backoff := time.Until(budget.backoffUntil)
	maxWait := budget.maxWait
	rl.mu.Unlock()

	deadline := time.Now().Add(maxWait)

	// Server-declared backoff comes first.
	if backoff > 0 {
		if time.Now().Add(backoff).After(deadline) {
			return &RateLimitError{Backend: backend, RetryAfter: backoff}
		}
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return &RateLimitError{Backend: backend, RetryAfter: backoff}
		}
	}

	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := budget.limiter.Wait(waitCtx); err != nil {
		return &RateLimitError{Backend: backend}
	}
	return nil
}

// OnResponse records a server-supplied retry-after hint. A zero hint is a
// no-op so callers can forward every response unconditionally.
func (rl *RateLimiter) OnResponse(backend Backend, retryAfter time.Duration) {
	if retryAfter <= 0 {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	budget, ok := rl.buckets[backend]
	if !ok {
		return
	}

	until := time.Now().Add(retryAfter)
	if until.After(budget.backoffUntil) {
		budget.backoffUntil = until
	}
}
