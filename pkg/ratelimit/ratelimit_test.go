package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucketDrainsAndRefills(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	tb := newTokenBucketWithClock(2, 1, clock.Now)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	clock.Advance(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucketCapsAtMax(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	tb := newTokenBucketWithClock(3, 10, clock.Now)

	clock.Advance(time.Hour)
	assert.Equal(t, float64(3), tb.Available())
}

func TestTokenBucketSetRefillRate(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	tb := newTokenBucketWithClock(10, 1, clock.Now)
	for tb.Allow() {
	}

	tb.SetRefillRate(4)
	clock.Advance(time.Second)
	assert.InDelta(t, 4, tb.Available(), 0.001)
	assert.Equal(t, float64(4), tb.RefillRate())
}

func TestIPRateLimiterIsolatesClients(t *testing.T) {
	ipl := NewIPRateLimiter(1, 0.001)
	defer ipl.Stop()

	assert.True(t, ipl.Allow("10.0.0.1"))
	assert.False(t, ipl.Allow("10.0.0.1"))
	assert.True(t, ipl.Allow("10.0.0.2"))
	assert.Equal(t, 2, ipl.Len())
}

func TestIPRateLimiterEvictsIdle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(100, 0)}
	ipl := NewIPRateLimiter(1, 0.001)
	defer ipl.Stop()
	ipl.now = clock.Now

	ipl.Allow("10.0.0.1")
	clock.Advance(11 * time.Minute)
	ipl.evictIdle()

	assert.Equal(t, 0, ipl.Len())
}

func TestAdaptiveLimiterSlowsUnderLoad(t *testing.T) {
	load := 0.0
	arl := newAdaptive(10, 100, 10, 0.5, func() float64 { return load })

	arl.adapt()
	assert.Equal(t, float64(100), arl.CurrentRate())

	load = 1.0
	arl.adapt()
	assert.Equal(t, float64(10), arl.CurrentRate())

	load = 0.75
	arl.adapt()
	assert.InDelta(t, 55, arl.CurrentRate(), 0.001)
}
