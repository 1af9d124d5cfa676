// Package ratelimit throttles model calls per client with in-memory token
// buckets.
package ratelimit

import (
	"sync"
	"time"
)

// Config holds configuration for the rate limiter.
type Config struct {
	// RequestsPerMinute is the sustained rate per client. Zero disables
	// limiting.
	RequestsPerMinute float64
	// Burst is the bucket capacity (default: RequestsPerMinute, at least 1).
	Burst float64
	// IdleTTL is how long an untouched bucket is kept (default: 10m).
	IdleTTL time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      float64
	Remaining  float64
	RetryAfter time.Duration
}

// Limiter keeps one bucket per client key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket

	capacity   float64
	refillRate float64
	idleTTL    time.Duration
	now        func() time.Time
}

// New returns a Limiter, or nil when cfg disables limiting. A nil *Limiter
// allows everything.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(cfg.RequestsPerMinute, 1)
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &Limiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   cfg.Burst,
		refillRate: cfg.RequestsPerMinute / 60,
		idleTTL:    cfg.IdleTTL,
		now:        time.Now,
	}
}

// Allow consumes a token from key's bucket.
func (l *Limiter) Allow(key string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	b := l.bucket(key)
	allowed := b.Allow()
	d := Decision{Allowed: allowed, Limit: l.capacity, Remaining: b.Remaining()}
	if !allowed {
		d.RetryAfter = b.WaitTime()
	}
	return d
}

func (l *Limiter) bucket(key string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = newTokenBucket(l.capacity, l.refillRate, l.now)
		l.buckets[key] = b
	}
	return b
}

// Sweep drops buckets idle for longer than IdleTTL and returns how many
// remain.
func (l *Limiter) Sweep() int {
	if l == nil {
		return 0
	}
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.idleSince().Before(cutoff) {
			delete(l.buckets, key)
		}
	}
	return len(l.buckets)
}

// Run sweeps every interval until stop is closed.
func (l *Limiter) Run(interval time.Duration, stop <-chan struct{}) {
	if l == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep()
		case <-stop:
			return
		}
	}
}
