package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveWithHeaders(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET(path, func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestSecurityHeaders_SetsBaselineHeaders(t *testing.T) {
	w := serveWithHeaders(t, "/api/v1/projects")

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}

func TestSecurityHeaders_CSPCarriesNonce(t *testing.T) {
	w := serveWithHeaders(t, "/api/v1/projects")

	csp := w.Header().Get("Content-Security-Policy")
	require.NotEmpty(t, csp)
	assert.Contains(t, csp, "default-src 'self'")
	assert.Contains(t, csp, "'nonce-")
	assert.Contains(t, csp, "frame-ancestors 'none'")
}

func TestSecurityHeaders_NonceIsUniquePerRequest(t *testing.T) {
	first := serveWithHeaders(t, "/api/v1/projects").Header().Get("Content-Security-Policy")
	second := serveWithHeaders(t, "/api/v1/projects").Header().Get("Content-Security-Policy")
	assert.NotEqual(t, first, second)
}

func TestSecurityHeaders_HealthProbesSkipCacheSuppression(t *testing.T) {
	probe := serveWithHeaders(t, "/health/live")
	assert.Empty(t, probe.Header().Get("Cache-Control"))

	api := serveWithHeaders(t, "/api/v1/projects")
	assert.Contains(t, api.Header().Get("Cache-Control"), "no-store")
}
