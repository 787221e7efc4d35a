package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/taylordash/taylordash/internal/logger"
	"github.com/taylordash/taylordash/internal/metrics"
	"github.com/taylordash/taylordash/internal/models"
)

// Observability observes http_request_duration_seconds/http_requests_total
// for every request and emits exactly one ApplicationLog row, at a
// severity/level derived from the response status and the slow-operation
// threshold.
func Observability(sink *logger.Sink, environment, host string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		durationMs := int(duration.Milliseconds())

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}
		status := c.Writer.Status()
		statusStr := statusBucket(status)

		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, endpoint, statusStr).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration.Seconds())

		severity, level, category := logger.ClassifySeverity(durationMs)
		if status >= 500 {
			severity, level = "high", "error"
		} else if status >= 400 {
			severity, level = "low", "warn"
		} else if category == "" {
			severity, level, category = "info", "info", "http"
		}

		message := c.Request.Method + " " + endpoint
		if len(c.Errors) > 0 {
			message = c.Errors.String()
		}

		rec := models.ApplicationLog{
			ID:          uuid.New().String(),
			Timestamp:   time.Now().UTC(),
			Level:       level,
			Service:     "taylordash",
			Category:    category,
			Severity:    severity,
			Message:     message,
			TraceID:     strPtr(GetTraceID(c)),
			RequestID:   strPtr(GetRequestID(c)),
			Endpoint:    strPtr(endpoint),
			Method:      strPtr(c.Request.Method),
			StatusCode:  &status,
			DurationMs:  &durationMs,
			Context:     models.JSONMap{"client_ip": c.ClientIP()},
			Environment: environment,
			Host:        host,
		}
		if uid, exists := c.Get("auth.user"); exists {
			if u, ok := uid.(*models.User); ok && u != nil {
				id := u.ID
				rec.UserID = &id
			}
		}
		sink.Enqueue(rec)
	}
}

func statusBucket(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
