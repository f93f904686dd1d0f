package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
	"z-novel-forge/pkg/utils"
)

// Gin Context 中的认证信息键
const (
	ContextUserID = "user_id"
	ContextScope  = "scope"
)

// AuthConfig 认证配置
type AuthConfig struct {
	Secret    string
	Issuer    string
	SkipPaths []string
	Enabled   bool
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

// Auth Bearer JWT 认证中间件；未启用时所有请求视为 operator
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Set(ContextScope, utils.ScopeOperator)
			c.Next()
			return
		}

		for _, path := range cfg.SkipPaths {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperrors.ErrTokenMissing)
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abort(c, apperrors.New(apperrors.CodeTokenInvalid, "invalid authorization format"))
			return
		}

		claims, err := jwtManager.ParseToken(parts[1])
		if err != nil {
			if errors.Is(err, utils.ErrExpiredToken) {
				abort(c, apperrors.ErrTokenExpired)
			} else {
				abort(c, apperrors.ErrTokenInvalid)
			}
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextScope, claims.Scope)
		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireScope 要求 operator 权限的路由使用
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetString(ContextScope)
		if got == scope || got == utils.ScopeOperator {
			c.Next()
			return
		}
		abort(c, apperrors.New(apperrors.CodeForbidden, "operator scope required"))
	}
}

// abort 以统一错误响应结构终止请求
func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, gin.H{
		"code":    err.HTTPStatus,
		"message": err.Message,
		"error": gin.H{
			"error_code": string(err.Code),
		},
		"trace_id": c.GetString("trace_id"),
	})
}
