package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket allows bursts up to capacity and refills at a constant rate.
type TokenBucket struct {
	capacity   float64 // burst size
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a full bucket.
//   - capacity: maximum number of tokens (burst size)
//   - refillRate: tokens added per second (sustained rate)
func NewTokenBucket(capacity, refillRate float64) *TokenBucket {
	return newTokenBucket(capacity, refillRate, time.Now)
}

func newTokenBucket(capacity, refillRate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     capacity,
		lastRefill: now(),
		now:        now,
	}
}

// Allow consumes one token if available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Remaining returns the number of tokens currently available.
func (tb *TokenBucket) Remaining() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	return tb.tokens
}

// WaitTime returns how long until one token is available; 0 if one is now.
func (tb *TokenBucket) WaitTime() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 || tb.refillRate <= 0 {
		return 0
	}
	secondsNeeded := (1 - tb.tokens) / tb.refillRate
	return time.Duration(secondsNeeded * float64(time.Second))
}

// idleSince reports when the bucket was last touched.
func (tb *TokenBucket) idleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

// refill must be called with the lock held.
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.refillRate)
	tb.lastRefill = now
}
