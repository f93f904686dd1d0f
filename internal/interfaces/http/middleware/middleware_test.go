package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/interfaces/http/middleware"
	"z-novel-forge/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(mw...)
	ok := func(c *gin.Context) { c.String(http.StatusOK, c.GetString(middleware.ContextScope)) }
	r.GET("/health", ok)
	r.GET("/api/v1/projects", ok)
	r.DELETE("/api/v1/global-context/:id", middleware.RequireScope(utils.ScopeOperator), ok)
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	cfg := middleware.AuthConfig{Secret: "s3cret", Issuer: "z-novel-forge", Enabled: true, SkipPaths: middleware.DefaultSkipPaths}
	r := newEngine(middleware.Auth(cfg))
	jwt := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	author, err := jwt.GenerateToken("writer-1", utils.ScopeAuthor, time.Hour)
	require.NoError(t, err)
	operator, err := jwt.GenerateToken("ops-1", utils.ScopeOperator, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/projects", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/projects", "garbage").Code)

	w := do(r, http.MethodGet, "/api/v1/projects", author)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, utils.ScopeAuthor, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodDelete, "/api/v1/global-context/x", author).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/v1/global-context/x", operator).Code)
}

func TestAuthDisabledGrantsOperator(t *testing.T) {
	r := newEngine(middleware.Auth(middleware.AuthConfig{}))
	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/v1/global-context/x", "").Code)
}

func TestRateLimitLocalFallback(t *testing.T) {
	r := newEngine(middleware.RateLimit(middleware.RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 2}, nil))

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/projects", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/projects", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/api/v1/projects", "").Code)
	// 不同路由独立计数
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code)
}
