// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"wenda-go/internal/config"
	"wenda-go/pkg/token"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuth 校验管理端请求的身份。
// 支持两种凭证：X-Admin-Token 头携带共享密钥（配置了 secret_hash 时
// 按 bcrypt 校验，否则与明文 secret 做常数时间比较）；
// 或 Authorization 头携带此前通过 /admin/token 换取的 Bearer JWT。
// 鉴权失败直接 401 中止，后续处理器不会执行、不会产生任何写入。
func AdminAuth(cfg config.AdminConfig, jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret := c.GetHeader("X-Admin-Token"); secret != "" {
			if VerifyAdminSecret(cfg, secret) {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的管理密钥"})
			return
		}

		authHeader := c.GetHeader("Authorization")
		const bearerPrefix = "Bearer "
		if strings.HasPrefix(authHeader, bearerPrefix) && jwtManager != nil {
			tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
			if _, err := jwtManager.VerifyToken(tokenString); err == nil {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含管理凭证"})
	}
}

// VerifyAdminSecret 校验共享密钥，token 签发端点也使用同一套校验策略。
// 配置了 secret_hash 时按 bcrypt 校验，否则与明文 secret 做常数时间比较。
func VerifyAdminSecret(cfg config.AdminConfig, secret string) bool {
	if cfg.SecretHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.SecretHash), []byte(secret)) == nil
	}
	if cfg.Secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cfg.Secret), []byte(secret)) == 1
}
