package handler

import (
	"github.com/gin-gonic/gin"

	"llm-sentinel-api/internal/application/constraint"
	"llm-sentinel-api/internal/interfaces/http/dto"
)

// ConstraintHandler 项目约束处理器
type ConstraintHandler struct {
	svc *constraint.Service
}

// NewConstraintHandler 创建约束处理器
func NewConstraintHandler(svc *constraint.Service) *ConstraintHandler {
	return &ConstraintHandler{svc: svc}
}

// Get 获取项目当前生效约束
// @Summary 项目约束
// @Tags Constraint
// @Produce json
// @Param project_id path string true "项目 ID"
// @Success 200 {object} dto.Response[entity.ProjectConstraints]
// @Router /v1/projects/{project_id}/constraints [get]
func (h *ConstraintHandler) Get(c *gin.Context) {
	constraints, err := h.svc.Get(c.Request.Context(), projectID(c))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, constraints)
}
