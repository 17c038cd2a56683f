package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ──────────────────────────────────────────────────────────────────────────────
// Token Bucket Rate Limiter
// ──────────────────────────────────────────────────────────────────────────────

// bucket is an in-memory token bucket for one caller.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	refilled time.Time
}

type rateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64 // maximum token capacity
	now     func() time.Time
}

// newRateLimiter allows rps requests per second with a burst of
// max(10, rps).
func newRateLimiter(rps int) *rateLimiter {
	burst := float64(rps)
	if burst < 10 {
		burst = 10
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		rate:    float64(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// allow deducts one token from key's bucket, or reports false when empty.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if b, ok = rl.buckets[key]; !ok {
			b = &bucket{tokens: rl.burst, refilled: rl.now()}
			rl.buckets[key] = b
		}
		rl.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := rl.now()
	b.tokens += now.Sub(b.refilled).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.refilled = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// evict drops buckets idle since before cutoff.
func (rl *rateLimiter) evict(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, b := range rl.buckets {
		b.mu.Lock()
		if b.refilled.Before(cutoff) {
			delete(rl.buckets, key)
		}
		b.mu.Unlock()
	}
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(c *gin.Context) string

// ByIP charges the client IP.
func ByIP(c *gin.Context) string { return c.ClientIP() }

// ByUser charges the authenticated user, falling back to the IP. Place it
// after JWTMiddleware.
func ByUser(c *gin.Context) string {
	if id := GetUserID(c); id != uuid.Nil {
		return "u:" + id.String()
	}
	return c.ClientIP()
}

// RateLimitMiddleware enforces rps requests per second per key. Callers over
// the limit receive 429 Too Many Requests.
func RateLimitMiddleware(rps int, key KeyFunc) gin.HandlerFunc {
	rl := newRateLimiter(rps)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			rl.evict(time.Now().Add(-10 * time.Minute))
		}
	}()

	return func(c *gin.Context) {
		if !rl.allow(key(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "too many requests, slow down",
				"code":    "ERR_RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}
