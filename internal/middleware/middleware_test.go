package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempalias/backend/internal/monitoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "203.0.113.7:5555"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIPRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter("api", 3, time.Minute, monitoring.NewMetrics())
	limiter.now = func() time.Time { return now }

	t.Run("超过配额返回429", func(t *testing.T) {
		r := gin.New()
		r.Use(limiter.Middleware())
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

		for i := 0; i < 3; i++ {
			assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ping", nil).Code)
		}
		rec := perform(r, http.MethodGet, "/ping", nil)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.JSONEq(t, `{"message":"`+RateLimitMessage+`"}`, rec.Body.String())
		assert.Equal(t, "20", rec.Header().Get("Retry-After"))
	})

	t.Run("按IP独立计数", func(t *testing.T) {
		assert.False(t, limiter.Allow("203.0.113.7"))
		assert.True(t, limiter.Allow("198.51.100.1"))
	})

	t.Run("令牌匀速补充", func(t *testing.T) {
		now = now.Add(20 * time.Second)
		assert.True(t, limiter.Allow("203.0.113.7"))
		assert.False(t, limiter.Allow("203.0.113.7"))
	})

	t.Run("清理空闲IP", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		assert.Equal(t, 2, limiter.evictIdle())
		assert.True(t, limiter.Allow("203.0.113.7"))
	})
}

func TestBodySizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(BodySizeLimit(16))
	r.POST("/echo", func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			if IsBodyTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "too large"})
				return
			}
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, string(b))
	})

	t.Run("未超限", func(t *testing.T) {
		rec := perform(r, http.MethodPost, "/echo", strings.NewReader("small"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "16", rec.Header().Get("X-Max-Body-Size"))
	})

	t.Run("Content-Length超限", func(t *testing.T) {
		rec := perform(r, http.MethodPost, "/echo", strings.NewReader(strings.Repeat("x", 32)))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.JSONEq(t, `{"message":"Request body too large"}`, rec.Body.String())
	})

	t.Run("未声明长度时读取截断", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/echo", io.NopCloser(strings.NewReader(strings.Repeat("x", 32))))
		req.ContentLength = -1
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestSecurityAndRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryHandler(zap.NewNop()), RequestLogger(zap.NewNop()), SecurityHeaders())
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := perform(r, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = perform(r, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Internal server error"}`, rec.Body.String())
}

func TestHTTPMetrics(t *testing.T) {
	metrics := monitoring.NewMetrics()
	r := gin.New()
	r.Use(HTTPMetrics(metrics))
	r.GET("/api/aliases/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	perform(r, http.MethodGet, "/api/aliases/abc", nil)
	perform(r, http.MethodGet, "/nope", nil)

	rec := httptest.NewRecorder()
	metrics.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `endpoint="/api/aliases/:id"`)
	assert.Contains(t, body, `endpoint="unmatched"`)
	assert.NotContains(t, body, "/api/aliases/abc")
}
