package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"wenda-go/internal/config"
	"wenda-go/pkg/token"
)

func newAdminRouter(cfg config.AdminConfig, jwtManager *token.JWTManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/admin/op", AdminAuth(cfg, jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func doAdminRequest(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/admin/op", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAuthMissingCredentials(t *testing.T) {
	r := newAdminRouter(config.AdminConfig{Secret: "s3cret"}, nil)

	w := doAdminRequest(r, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthPlainSecret(t *testing.T) {
	r := newAdminRouter(config.AdminConfig{Secret: "s3cret"}, nil)

	w := doAdminRequest(r, map[string]string{"X-Admin-Token": "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doAdminRequest(r, map[string]string{"X-Admin-Token": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthBcryptHashTakesPriority(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	// 同时配置明文与哈希时按哈希校验
	r := newAdminRouter(config.AdminConfig{Secret: "plain", SecretHash: string(hash)}, nil)

	w := doAdminRequest(r, map[string]string{"X-Admin-Token": "hashed-secret"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doAdminRequest(r, map[string]string{"X-Admin-Token": "plain"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthEmptySecretRejectsAll(t *testing.T) {
	r := newAdminRouter(config.AdminConfig{}, nil)

	w := doAdminRequest(r, map[string]string{"X-Admin-Token": ""})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doAdminRequest(r, map[string]string{"X-Admin-Token": "anything"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuthBearerJWT(t *testing.T) {
	jwtManager := token.NewJWTManager("jwt-signing-key", 1)
	r := newAdminRouter(config.AdminConfig{Secret: "s3cret"}, jwtManager)

	valid, err := jwtManager.GenerateToken()
	require.NoError(t, err)

	w := doAdminRequest(r, map[string]string{"Authorization": "Bearer " + valid})
	assert.Equal(t, http.StatusOK, w.Code)

	// 其他密钥签出来的 token 不被接受
	other, err := token.NewJWTManager("other-key", 1).GenerateToken()
	require.NoError(t, err)
	w = doAdminRequest(r, map[string]string{"Authorization": "Bearer " + other})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
