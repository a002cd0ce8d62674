package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiting algorithm
type TokenBucket struct {
	mu             sync.Mutex
	tokens         float64
	maxTokens      float64
	refillRate     float64
	lastRefillTime time.Time
	lastUsed       time.Time
	now            func() time.Time
}

// NewTokenBucket creates a full bucket holding maxTokens and refilling refillRate tokens per second
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return newTokenBucketWithClock(maxTokens, refillRate, time.Now)
}

func newTokenBucketWithClock(maxTokens, refillRate float64, now func() time.Time) *TokenBucket {
	t := now()
	return &TokenBucket{
		tokens:         maxTokens,
		maxTokens:      maxTokens,
		refillRate:     refillRate,
		lastRefillTime: t,
		lastUsed:       t,
		now:            now,
	}
}

// Allow takes one token if available
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN takes n tokens if available
func (tb *TokenBucket) AllowN(n float64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.refill(now)
	tb.lastUsed = now

	if tb.tokens >= n {
		tb.tokens -= n
		return true
	}
	return false
}

// refill must be called with mu held
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefillTime).Seconds()
	if elapsed <= 0 {
		return
	}
	tb.lastRefillTime = now
	tb.tokens = minFloat(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.maxTokens
	tb.lastRefillTime = tb.now()
}

// Available returns the tokens that would be available now without consuming any
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := tb.now().Sub(tb.lastRefillTime).Seconds()
	return minFloat(tb.maxTokens, tb.tokens+elapsed*tb.refillRate)
}

// SetRefillRate changes the refill rate, crediting tokens earned at the old rate first
func (tb *TokenBucket) SetRefillRate(rate float64) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(tb.now())
	tb.refillRate = rate
}

// MaxTokens returns the bucket capacity
func (tb *TokenBucket) MaxTokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.maxTokens
}

// RefillRate returns tokens added per second
func (tb *TokenBucket) RefillRate() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.refillRate
}

// IdleSince returns the last time a token was requested
func (tb *TokenBucket) IdleSince() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastUsed
}
