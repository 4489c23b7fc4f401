package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/scanform/scanform-api/internal/ratelimit"
)

func newRateLimitRouter(limit int, window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(ratelimit.NewMemoryLimiter(), RateLimitOptions{Limit: limit, Window: window}, zap.NewNop(), nil))
	r.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doRequest(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("X-Forwarded-For", ip)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	r := newRateLimitRouter(5, time.Minute)

	for i := 1; i <= 5; i++ {
		w := doRequest(r, "1.2.3.4")
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	w := doRequest(r, "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitHeadersOnAllowedRequests(t *testing.T) {
	r := newRateLimitRouter(10, time.Minute)

	w := doRequest(r, "1.2.3.4")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitIsolatedPerClient(t *testing.T) {
	r := newRateLimitRouter(2, time.Minute)

	doRequest(r, "1.2.3.4")
	doRequest(r, "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "1.2.3.4").Code)

	assert.Equal(t, http.StatusOK, doRequest(r, "5.6.7.8").Code)
}

func TestRateLimitWindowReset(t *testing.T) {
	window := 30 * time.Millisecond
	r := newRateLimitRouter(1, window)

	assert.Equal(t, http.StatusOK, doRequest(r, "1.2.3.4").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(r, "1.2.3.4").Code)

	time.Sleep(window + 10*time.Millisecond)

	assert.Equal(t, http.StatusOK, doRequest(r, "1.2.3.4").Code)
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got string
	r := gin.New()
	r.GET("/", func(c *gin.Context) {
		got = ClientIP(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "9.9.9.9", got)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "8.8.8.8")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "8.8.8.8", got)
}
