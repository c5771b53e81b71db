package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"wenda-go/internal/ratelimit"
	"wenda-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RateLimit 在任何昂贵操作之前执行限流准入。
// 超限时返回 429，附 Retry-After 头；计数器故障按内部错误处理。
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientKey := ClientKey(c.Request)

		if err := limiter.Admit(c.Request.Context(), clientKey); err != nil {
			var limitErr *ratelimit.LimitError
			if errors.As(err, &limitErr) {
				c.Header("Retry-After", strconv.FormatInt(limitErr.RetryAfterSec, 10))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "请求过于频繁，请稍后再试"})
				return
			}
			log.Errorf("[RateLimit] 限流准入检查失败 (client=%s): %v", clientKey, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "服务暂时不可用"})
			return
		}

		c.Next()
	}
}

// ClientKey 推导限流用的客户端标识：
// 优先取 X-Forwarded-For 的第一跳，其次 X-Real-IP，
// 两者都缺失时统一落到 "unknown"（所有无法识别的客户端共享一个桶，
// 这是刻意的保守兜底）。
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return "unknown"
}
