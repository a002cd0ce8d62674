package ratelimit

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// LoadFunc reports current load in [0, 1]
type LoadFunc func() float64

// GoroutineLoad uses the goroutine count against a soft ceiling as a load proxy
func GoroutineLoad(ceiling int) LoadFunc {
	return func() float64 {
		load := float64(runtime.NumGoroutine()) / float64(ceiling)
		if load > 1 {
			return 1
		}
		return load
	}
}

// AdaptiveRateLimiter lowers its refill rate towards minRate as load rises above the threshold
type AdaptiveRateLimiter struct {
	baseLimiter    *TokenBucket
	maxRate        float64
	minRate        float64
	loadThreshold  float64
	load           LoadFunc
	mu             sync.Mutex
	currentRate    float64
	currentLoad    float64
	requestCount   int64
	rejectionCount int64
	interval       time.Duration
	stopChan       chan struct{}
	stopOnce       sync.Once
}

// NewAdaptiveRateLimiter creates a limiter that re-evaluates load every five seconds
func NewAdaptiveRateLimiter(maxTokens, maxRate, minRate, loadThreshold float64) *AdaptiveRateLimiter {
	arl := newAdaptive(maxTokens, maxRate, minRate, loadThreshold, GoroutineLoad(10000))
	go arl.adaptationLoop()
	return arl
}

func newAdaptive(maxTokens, maxRate, minRate, loadThreshold float64, load LoadFunc) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		baseLimiter:   NewTokenBucket(maxTokens, maxRate),
		maxRate:       maxRate,
		minRate:       minRate,
		currentRate:   maxRate,
		loadThreshold: loadThreshold,
		load:          load,
		interval:      5 * time.Second,
		stopChan:      make(chan struct{}),
	}
}

// Allow checks if a request can proceed
func (arl *AdaptiveRateLimiter) Allow() bool {
	atomic.AddInt64(&arl.requestCount, 1)

	if arl.baseLimiter.Allow() {
		return true
	}
	atomic.AddInt64(&arl.rejectionCount, 1)
	return false
}

func (arl *AdaptiveRateLimiter) adaptationLoop() {
	ticker := time.NewTicker(arl.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			arl.adapt()
		case <-arl.stopChan:
			return
		}
	}
}

func (arl *AdaptiveRateLimiter) adapt() {
	arl.mu.Lock()
	defer arl.mu.Unlock()

	arl.currentLoad = arl.load()

	rate := arl.maxRate
	if arl.currentLoad > arl.loadThreshold && arl.loadThreshold < 1 {
		factor := (arl.currentLoad - arl.loadThreshold) / (1 - arl.loadThreshold)
		if factor > 1 {
			factor = 1
		}
		rate = arl.maxRate - (arl.maxRate-arl.minRate)*factor
	}

	arl.currentRate = rate
	arl.baseLimiter.SetRefillRate(rate)
}

// Stop stops the adaptation loop
func (arl *AdaptiveRateLimiter) Stop() {
	arl.stopOnce.Do(func() { close(arl.stopChan) })
}

// CurrentRate returns the refill rate chosen by the last adaptation
func (arl *AdaptiveRateLimiter) CurrentRate() float64 {
	arl.mu.Lock()
	defer arl.mu.Unlock()
	return arl.currentRate
}

// GetMetrics returns metrics about the rate limiter
func (arl *AdaptiveRateLimiter) GetMetrics() map[string]interface{} {
	arl.mu.Lock()
	defer arl.mu.Unlock()

	return map[string]interface{}{
		"current_rate":     arl.currentRate,
		"max_rate":         arl.maxRate,
		"min_rate":         arl.minRate,
		"current_load":     arl.currentLoad,
		"load_threshold":   arl.loadThreshold,
		"request_count":    atomic.LoadInt64(&arl.requestCount),
		"rejection_count":  atomic.LoadInt64(&arl.rejectionCount),
		"available_tokens": arl.baseLimiter.Available(),
	}
}
