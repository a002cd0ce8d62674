package ratelimit

import (
	"sync"
	"time"
)

// IPRateLimiter keeps one token bucket per client address
type IPRateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*TokenBucket
	maxTokens  float64
	refillRate float64
	idleTTL    time.Duration
	now        func() time.Time
	cleanup    *time.Ticker
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewIPRateLimiter creates a limiter and starts its idle-bucket sweeper
func NewIPRateLimiter(maxTokens, refillRate float64) *IPRateLimiter {
	limiter := &IPRateLimiter{
		limiters:   make(map[string]*TokenBucket),
		maxTokens:  maxTokens,
		refillRate: refillRate,
		idleTTL:    10 * time.Minute,
		now:        time.Now,
		cleanup:    time.NewTicker(time.Minute),
		stopChan:   make(chan struct{}),
	}

	go limiter.cleanupLoop()

	return limiter
}

// Allow checks if a request from the given IP can proceed
func (ipl *IPRateLimiter) Allow(ip string) bool {
	return ipl.getLimiter(ip).Allow()
}

func (ipl *IPRateLimiter) getLimiter(ip string) *TokenBucket {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	limiter, exists := ipl.limiters[ip]
	if !exists {
		limiter = newTokenBucketWithClock(ipl.maxTokens, ipl.refillRate, ipl.now)
		ipl.limiters[ip] = limiter
	}
	return limiter
}

// Len returns the number of tracked clients
func (ipl *IPRateLimiter) Len() int {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()
	return len(ipl.limiters)
}

func (ipl *IPRateLimiter) cleanupLoop() {
	for {
		select {
		case <-ipl.cleanup.C:
			ipl.evictIdle()
		case <-ipl.stopChan:
			ipl.cleanup.Stop()
			return
		}
	}
}

// evictIdle drops buckets untouched for idleTTL; a dropped client starts again with a full bucket
func (ipl *IPRateLimiter) evictIdle() {
	ipl.mu.Lock()
	defer ipl.mu.Unlock()

	cutoff := ipl.now().Add(-ipl.idleTTL)
	for ip, limiter := range ipl.limiters {
		if limiter.IdleSince().Before(cutoff) {
			delete(ipl.limiters, ip)
		}
	}
}

// Stop stops the sweeper
func (ipl *IPRateLimiter) Stop() {
	ipl.stopOnce.Do(func() { close(ipl.stopChan) })
}
