// Package middleware provides HTTP middleware for the TaylorDash API.
// This file enforces a maximum duration per request, guarding against slow
// clients and runaway handlers holding connections open indefinitely.
package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/taylordash/taylordash/internal/errors"
)

// TimeoutConfig configures the per-request deadline.
type TimeoutConfig struct {
	Timeout time.Duration
	// ExcludedPaths are path prefixes exempt from the deadline (streaming
	// endpoints, long uploads).
	ExcludedPaths []string
}

// DefaultTimeoutConfig returns the standard 30s deadline, excluding
// websocket and upload routes.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Timeout: 30 * time.Second,
		ExcludedPaths: []string{
			"/api/v1/ws/",
			"/api/v1/upload",
		},
	}
}

// Timeout aborts the request with a 504 (via the AppError taxonomy) once
// config.Timeout elapses. The handler keeps running to completion in its own
// goroutine; only the response to the client is affected.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, prefix := range config.ExcludedPaths {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		finished := make(chan struct{})
		go func() {
			c.Next()
			close(finished)
		}()

		select {
		case <-finished:
			return
		case <-ctx.Done():
			apperrors.AbortWithError(c, apperrors.Timeout())
		}
	}
}

// TimeoutWithDuration builds a Timeout middleware with the default
// exclusions but a custom duration.
func TimeoutWithDuration(timeout time.Duration) gin.HandlerFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	return Timeout(config)
}
