package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wenda-go/internal/ratelimit"
)

func newLimitedRouter(limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/chat", RateLimit(limiter), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func postChat(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	if ip != "" {
		req.Header.Set("X-Forwarded-For", ip)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitAllowsThenRejects(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(),
		ratelimit.Window{Kind: "minute", Limit: 3, Duration: time.Minute})
	r := newLimitedRouter(limiter)

	for i := 0; i < 3; i++ {
		w := postChat(r, "10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := postChat(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err, "429 响应必须携带 Retry-After 头")
	assert.Greater(t, retryAfter, 0)
	assert.LessOrEqual(t, retryAfter, 60)
	assert.Contains(t, w.Body.String(), "请求过于频繁")
}

func TestRateLimitPerClientIsolation(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(),
		ratelimit.Window{Kind: "minute", Limit: 1, Duration: time.Minute})
	r := newLimitedRouter(limiter)

	require.Equal(t, http.StatusOK, postChat(r, "10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, postChat(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, postChat(r, "10.0.0.2").Code)
}

func TestClientKeyDerivation(t *testing.T) {
	newReq := func(headers map[string]string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req
	}

	// X-Forwarded-For 取第一跳
	assert.Equal(t, "1.2.3.4", ClientKey(newReq(map[string]string{
		"X-Forwarded-For": "1.2.3.4, 10.0.0.1, 10.0.0.2",
	})))
	// XFF 缺失时退回 X-Real-IP
	assert.Equal(t, "5.6.7.8", ClientKey(newReq(map[string]string{
		"X-Real-IP": "5.6.7.8",
	})))
	// XFF 优先于 X-Real-IP
	assert.Equal(t, "1.2.3.4", ClientKey(newReq(map[string]string{
		"X-Forwarded-For": " 1.2.3.4 ",
		"X-Real-IP":       "5.6.7.8",
	})))
	// 两者都缺失时共享 unknown 桶
	assert.Equal(t, "unknown", ClientKey(newReq(nil)))
}
