// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"

	apperrors "llm-sentinel-api/pkg/errors"
	"llm-sentinel-api/pkg/logger"

	"github.com/gin-gonic/gin"

	"llm-sentinel-api/internal/application/constraint"
	"llm-sentinel-api/internal/domain/entity"
)

const constraintsContextKey = "project_constraints"

// Constraints 约束执行中间件。
// 读取项目当前约束：被禁用的端点直接拒绝，其余约束放入
// Context 供限流与采集路径消费。约束读取失败时放行，
// 约束是尽力而为的防护，不能反过来放大故障。
func Constraints(svc *constraint.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.GetString("project_id")
		if projectID == "" || svc == nil {
			c.Next()
			return
		}

		constraints, err := svc.Get(c.Request.Context(), projectID)
		if err != nil {
			logger.Warn(c.Request.Context(), "failed to load constraints, skipping enforcement",
				"project_id", projectID,
				"error", err.Error(),
			)
			c.Next()
			return
		}

		if constraints.IsEndpointDisabled(c.FullPath()) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"code":       http.StatusServiceUnavailable,
				"error_code": apperrors.CodeEndpointDisabled,
				"message":    "endpoint disabled by remediation",
				"trace_id":   c.GetString("trace_id"),
			})
			return
		}

		c.Set(constraintsContextKey, constraints)
		c.Next()
	}
}

// ConstraintsFromContext 从 Gin Context 取出项目约束；未设置时返回 nil
func ConstraintsFromContext(c *gin.Context) *entity.ProjectConstraints {
	value, ok := c.Get(constraintsContextKey)
	if !ok {
		return nil
	}
	constraints, ok := value.(*entity.ProjectConstraints)
	if !ok {
		return nil
	}
	return constraints
}
