// Package ratelimit provides the per-connection signaling message rate
// limiter.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a token bucket refilled continuously at rate tokens/sec up
// to capacity. A rate <= 0 disables limiting (Allow always succeeds).
type TokenBucket struct {
	mu sync.Mutex

	clock    Clock
	rate     float64
	capacity float64

	tokens float64
	last   time.Time
}

func NewTokenBucket(clock Clock, capacity, rate int) *TokenBucket {
	if clock == nil {
		clock = RealClock{}
	}
	b := &TokenBucket{
		clock:    clock,
		rate:     float64(rate),
		capacity: float64(capacity),
	}
	b.tokens = b.capacity
	b.last = clock.Now()
	return b
}

// Allow consumes one token if available.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rate <= 0 {
		return true
	}

	now := b.clock.Now()
	if elapsed := now.Sub(b.last); elapsed > 0 {
		b.tokens += elapsed.Seconds() * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	// Clocks that move backwards only shift the reference point.
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
