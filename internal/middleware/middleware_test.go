package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_PerClientBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst of 2 should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request within the same instant should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own bucket")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatal("bucket should refill after a second")
	}
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	now = now.Add(2 * idleTTL)
	rl.Allow("b")
	if _, ok := rl.clients["a"]; ok {
		t.Fatal("idle client was not evicted")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(0, 1).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client-ID", "cli")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	if code := do(); code != http.StatusNoContent {
		t.Fatalf("first request: %d", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", code)
	}
}
