package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket with a capacity of one token, refilled at a
// fixed per-minute rate. It paces outbound market data requests.
type RateLimiter struct {
	mu       sync.Mutex
	perSec   float64
	tokens   float64
	lastFill time.Time
	poll     time.Duration
}

// NewRateLimiter allows perMinute calls per minute. Non-positive rates
// disable limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perSec:   float64(perMinute) / 60.0,
		tokens:   1,
		lastFill: time.Now(),
		poll:     10 * time.Millisecond,
	}
}

func (rl *RateLimiter) take(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.perSec <= 0 {
		return true
	}
	rl.tokens += now.Sub(rl.lastFill).Seconds() * rl.perSec
	if rl.tokens > 1 {
		rl.tokens = 1
	}
	rl.lastFill = now
	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for !rl.take(time.Now()) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rl.poll):
		}
	}
	return nil
}
