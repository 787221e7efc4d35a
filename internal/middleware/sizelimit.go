// Package middleware provides HTTP middleware for the TaylorDash API.
// This file bounds request body sizes before any handler reads them.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/taylordash/taylordash/internal/errors"
)

// MaxRequestBodySize bounds every request body. Plugin bundles arrive via
// git clone, not upload, so nothing on this surface legitimately exceeds it.
const MaxRequestBodySize int64 = 10 * 1024 * 1024

// RequestSizeLimiter rejects requests whose declared Content-Length exceeds
// maxSize and wraps the body in a MaxBytesReader to enforce the same cap on
// clients that lie about or omit the header.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				apperrors.Response{Detail: "request body exceeds maximum allowed size"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}

// DefaultSizeLimiter applies MaxRequestBodySize.
func DefaultSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxRequestBodySize)
}
