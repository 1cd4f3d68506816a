// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"
	"strings"

	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RoleAdmin 管理员角色，可跨项目操作并触发检测
const RoleAdmin = "admin"

// AuthConfig 认证配置
type AuthConfig struct {
	// Secret JWT 密钥
	Secret string
	// Issuer JWT 签发者
	Issuer string
	// SkipPaths 跳过认证的路径
	SkipPaths []string
	// Enabled 是否启用认证
	Enabled bool
}

// DefaultSkipPaths 默认跳过认证的路径
var DefaultSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

// Auth 认证中间件。
// 鉴权层只负责验签并注入已授权的 project_id，核心层不再做所有权判定。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	jwtManager := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	skipMap := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipMap[path] = true
	}

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		claims, err := jwtManager.ParseToken(parts[1])
		if err != nil {
			msg := "invalid token"
			if err == utils.ErrExpiredToken {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		c.Set("auth_project_id", claims.ProjectID)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// ProjectScope 校验路径中的项目与令牌授权一致；管理员放行
func ProjectScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("project_id")
		if projectID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":     http.StatusBadRequest,
				"message":  "project_id is required",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		authProject := c.GetString("auth_project_id")
		role := c.GetString("role")
		if authProject != "" && authProject != projectID && role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":     http.StatusForbidden,
				"message":  "project access denied",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}

		c.Set("project_id", projectID)

		ctx := logger.WithContext(c.Request.Context(), logger.ProjectIDKey, projectID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole 角色校验中间件
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":     http.StatusForbidden,
				"message":  "insufficient role",
				"trace_id": c.GetString("trace_id"),
			})
			return
		}
		c.Next()
	}
}

// abortUnauthorized 终止请求并返回 401
func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":     http.StatusUnauthorized,
		"message":  msg,
		"trace_id": c.GetString("trace_id"),
	})
}
