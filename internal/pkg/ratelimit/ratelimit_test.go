package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	l := NewSlidingWindowLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "request %d should be allowed", i)
	}
	assert.False(t, l.Allow(), "4th request should be denied")
}

func TestSlidingWindowLimiter_ExpiredRequestsAreEvicted(t *testing.T) {
	l := NewSlidingWindowLimiter(50*time.Millisecond, 1)

	require.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, l.Allow(), "window should have rolled over")
}

func TestSlidingWindowLimiter_AllowN(t *testing.T) {
	l := NewSlidingWindowLimiter(time.Minute, 10)

	assert.True(t, l.AllowN(6))
	assert.False(t, l.AllowN(5), "6+5 exceeds the 10 request cap")
	assert.True(t, l.AllowN(4), "6+4 exactly fills the cap")
}

func TestSlidingWindowLimiter_RetryAfter(t *testing.T) {
	l := NewSlidingWindowLimiter(100*time.Millisecond, 1)

	assert.Equal(t, time.Duration(0), l.RetryAfter(), "empty window needs no wait")

	require.True(t, l.Allow())
	wait := l.RetryAfter()
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 100*time.Millisecond)
}

func TestTokenBucketLimiter_BurstThenRefill(t *testing.T) {
	l := NewTokenBucketLimiter(100, 2)

	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow(), "burst exhausted")

	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow(), "should have refilled at least one token")
}

func TestKeyedRateLimiter_IsolatesByKey(t *testing.T) {
	m := NewKeyedRateLimiter(func() RateLimiter {
		return NewSlidingWindowLimiter(time.Minute, 1)
	})

	assert.True(t, m.Allow("0xaaa"))
	assert.False(t, m.Allow("0xaaa"), "same key should be rate limited")
	assert.True(t, m.Allow("0xbbb"), "different key has its own limiter")
}

func TestKeyedRateLimiter_GetLimiterReturnsSameInstance(t *testing.T) {
	m := NewKeyedRateLimiter(func() RateLimiter {
		return NewSlidingWindowLimiter(time.Minute, 5)
	})

	first := m.GetLimiter("0xccc")
	second := m.GetLimiter("0xccc")
	assert.Same(t, first, second)
}
