// Package ratelimit provides per-client rate limiting middleware. Stream
// subscriptions are long-lived, so the limiter guards the subscribe call
// itself: a client that churns reconnects gets 429 before it can occupy an
// engine slot.
package ratelimit

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter decides whether a request for the given key may proceed.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	// Allow reports whether a request for key is within limits.
	Allow(key string) bool
}

// TokenBucketLimiter rate limits per key using the token bucket algorithm.
// Each key gets an independent bucket, so one aggressive client cannot starve
// the others. Buckets allow bursts up to the burst size while holding the
// average to the configured rate.
type TokenBucketLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTokenBucketLimiter creates a limiter allowing requestsPerSecond on
// average with bursts up to burst. For example, rate 1 with burst 3 lets a
// client open three streams back to back, then one per second.
func NewTokenBucketLimiter(requestsPerSecond float64, burst int) *TokenBucketLimiter {
	return &TokenBucketLimiter{
		rate:  rate.Limit(requestsPerSecond),
		burst: burst,
	}
}

// Allow reports whether a request for key is within limits. Each key lazily
// gets its own bucket on first use.
func (l *TokenBucketLimiter) Allow(key string) bool {
	return l.getLimiter(key).Allow()
}

func (l *TokenBucketLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter)
}

// RateLimit creates middleware that rejects over-limit requests with 429 and
// a Retry-After hint. keyFunc extracts the limiting key; nil uses the client
// IP.
func RateLimit(limiter RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = IPBasedKey
	}
	return func(c *gin.Context) {
		if !limiter.Allow(keyFunc(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// IPBasedKey keys the limiter by client IP, honoring proxy forwarding
// headers.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}
