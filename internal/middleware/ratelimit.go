// Package middleware provides HTTP middleware for the TaylorDash API.
// This file implements token-bucket rate limiting: a per-IP limiter applied
// to the whole surface, and a per-user limiter for expensive admin
// operations like plugin installs.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"golang.org/x/time/rate"
)

// maxTrackedBuckets caps how many limiter entries a map may hold before the
// cleanup pass resets it. A reset refills every bucket, which briefly
// over-admits; unbounded growth from spoofed source IPs is the worse
// failure.
const maxTrackedBuckets = 10000

// RateLimiter hands out one token bucket per client IP.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewRateLimiter allows requestsPerSecond sustained with the given burst,
// tracked per client IP.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
	go rl.cleanupLoop(5 * time.Minute)
	return rl
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists = rl.limiters[key]; exists {
		return limiter
	}
	limiter = rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

func (rl *RateLimiter) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		if len(rl.limiters) > maxTrackedBuckets {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		rl.mu.Unlock()
	}
}

// Middleware rejects requests over the per-IP budget with 429 and a
// Retry-After hint.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.getLimiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.Response{Detail: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// EndpointRateLimiter limits a specific operation per authenticated user,
// keyed on username:endpoint. Unauthenticated requests pass through; the
// per-IP limiter still covers them.
type EndpointRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewEndpointRateLimiter allows requestsPerHour per user for one endpoint.
func NewEndpointRateLimiter(requestsPerHour int, burst int) *EndpointRateLimiter {
	return &EndpointRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(requestsPerHour) / 3600.0),
		burst:    burst,
	}
}

// Middleware returns the limiter for one named endpoint. Must run after
// RequireAuth, which sets the "username" context key.
func (erl *EndpointRateLimiter) Middleware(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("username")
		if username == "" {
			c.Next()
			return
		}
		key := username + ":" + endpoint

		erl.mu.RLock()
		limiter, exists := erl.limiters[key]
		erl.mu.RUnlock()
		if !exists {
			erl.mu.Lock()
			if limiter, exists = erl.limiters[key]; !exists {
				limiter = rate.NewLimiter(erl.rate, erl.burst)
				erl.limiters[key] = limiter
			}
			erl.mu.Unlock()
		}

		if !limiter.Allow() {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apperrors.Response{Detail: "rate limit exceeded for this operation"})
			return
		}
		c.Next()
	}
}
