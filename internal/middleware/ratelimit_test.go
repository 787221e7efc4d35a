package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestContext(method, path string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, nil)
	return c, w
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	handler := rl.Middleware()

	for i := 0; i < 3; i++ {
		c, w := newTestContext(http.MethodGet, "/")
		handler(c)
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d should have been allowed within burst, got 429", i+1)
		}
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.01, 2)
	handler := rl.Middleware()

	for i := 0; i < 2; i++ {
		c, _ := newTestContext(http.MethodGet, "/")
		handler(c)
	}

	c, w := newTestContext(http.MethodGet, "/")
	handler(c)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 once burst is exhausted, got %d", w.Code)
	}
}

func TestRateLimiter_PerIPIsolation(t *testing.T) {
	rl := NewRateLimiter(0.01, 1)
	handler := rl.Middleware()

	c1, w1 := newTestContext(http.MethodGet, "/")
	c1.Request.RemoteAddr = "10.0.0.1:1234"
	handler(c1)
	if w1.Code == http.StatusTooManyRequests {
		t.Fatal("first request from a fresh IP should be allowed")
	}

	c2, w2 := newTestContext(http.MethodGet, "/")
	c2.Request.RemoteAddr = "10.0.0.2:1234"
	handler(c2)
	if w2.Code == http.StatusTooManyRequests {
		t.Fatal("a different IP must get its own bucket")
	}
}

func TestEndpointRateLimiter_UnauthenticatedRequestsBypass(t *testing.T) {
	erl := NewEndpointRateLimiter(3600, 1)
	handler := erl.Middleware("plugins.install")

	c, w := newTestContext(http.MethodPost, "/plugins")
	handler(c)
	if w.Code == http.StatusTooManyRequests {
		t.Fatal("requests with no authenticated user must bypass endpoint limiting")
	}
}

func TestEndpointRateLimiter_BlocksSecondCallForSameUser(t *testing.T) {
	erl := NewEndpointRateLimiter(1, 1)
	handler := erl.Middleware("plugins.install")

	c1, w1 := newTestContext(http.MethodPost, "/plugins")
	c1.Set("username", "alice")
	handler(c1)
	if w1.Code == http.StatusTooManyRequests {
		t.Fatal("first call for a user should be allowed")
	}

	c2, w2 := newTestContext(http.MethodPost, "/plugins")
	c2.Set("username", "alice")
	handler(c2)
	if w2.Code != http.StatusTooManyRequests {
		t.Errorf("second call within the same burst window should be rejected, got %d", w2.Code)
	}
}

func TestRateLimiter_GetLimiterIsPerKey(t *testing.T) {
	rl := NewRateLimiter(5, 5)
	a := rl.getLimiter("key-a")
	b := rl.getLimiter("key-b")
	if a == b {
		t.Fatal("distinct keys must not share a limiter")
	}
	if rl.getLimiter("key-a") != a {
		t.Fatal("the same key must reuse its limiter instance")
	}
}
