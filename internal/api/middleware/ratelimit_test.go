package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(5)
	rl.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		assert.True(t, rl.allow("a"), "request %d within burst", i)
	}
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "buckets are per key")

	now = now.Add(time.Second)
	for i := 0; i < 5; i++ {
		assert.True(t, rl.allow("a"))
	}
	assert.False(t, rl.allow("a"))
}

func TestRateLimiter_Evict(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(1)
	rl.now = func() time.Time { return now }
	rl.allow("old")
	now = now.Add(time.Hour)
	rl.allow("new")

	rl.evict(now.Add(-time.Minute))

	assert.Len(t, rl.buckets, 1)
	assert.Contains(t, rl.buckets, "new")
}
