package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestLimiterAllow(t *testing.T) {
	l := NewLimiter(3, time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1", now))
	}
	assert.False(t, l.Allow("10.0.0.1", now))
	assert.True(t, l.Allow("10.0.0.2", now), "buckets are per key")

	// 20 秒补充一个令牌
	assert.True(t, l.Allow("10.0.0.1", now.Add(20*time.Second)))
	assert.False(t, l.Allow("10.0.0.1", now.Add(20*time.Second)))
}

func TestLimiterCleanup(t *testing.T) {
	l := NewLimiter(10, time.Minute)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	l.Allow("old", now)
	l.Allow("fresh", now.Add(3*time.Minute))
	l.Cleanup(now.Add(3*time.Minute + time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.visitors, "old")
	assert.Contains(t, l.visitors, "fresh")
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stop := make(chan struct{})
	defer close(stop)

	r := gin.New()
	r.Use(RateLimiter(NewLimiter(1, time.Hour), stop))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"code":429,"message":"too many requests"}`, w.Body.String())
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}), Secure())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	t.Run("unknown origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
