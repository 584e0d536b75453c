// Package budget implements the Budget Enforcer (C5) and the token-bucket
// cooldown limiter the Orchestration Engine (C10) uses to rate-limit
// healing actions per target.
package budget

import (
	"sync"
	"sync/atomic"
	"time"
)

// Bucket is a thread-safe token bucket. Each refillPeriod it refills to
// full capacity (not incrementally) — the Orchestration Engine uses one
// bucket per target so "at most one healing action per cooldown window"
// becomes "Consume(1) against a capacity-1, cooldown-period bucket".
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// NewBucket creates a Bucket with the given capacity and starts its
// refill goroutine. Call Close to stop it.
func NewBucket(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("budget.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("budget.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens. Returns true if they were
// available.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the maximum token capacity.
func (b *Bucket) Capacity() int { return b.capacity }

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 { return b.consumedTotal.Load() }

// RefillCount returns the number of refill cycles completed.
func (b *Bucket) RefillCount() uint64 { return b.refillCount.Load() }

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() { close(b.stop) }

// CooldownLimiter rate-limits actions per target string to at most one per
// cooldown window, lazily creating a capacity-1 Bucket per target the
// first time it's seen.
type CooldownLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	buckets  map[string]*Bucket
}

// NewCooldownLimiter creates a limiter with the given per-target cooldown
// window.
func NewCooldownLimiter(cooldown time.Duration) *CooldownLimiter {
	return &CooldownLimiter{cooldown: cooldown, buckets: make(map[string]*Bucket)}
}

// Allow reports whether an action against target may proceed now,
// consuming target's single token if so.
func (l *CooldownLimiter) Allow(target string) bool {
	l.mu.Lock()
	b, ok := l.buckets[target]
	if !ok {
		b = NewBucket(1, l.cooldown)
		l.buckets[target] = b
	}
	l.mu.Unlock()
	return b.Consume(1)
}

// Close stops every per-target bucket's refill goroutine.
func (l *CooldownLimiter) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, b := range l.buckets {
		b.Close()
	}
}
