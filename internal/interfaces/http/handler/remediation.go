package handler

import (
	"github.com/gin-gonic/gin"

	"llm-sentinel-api/internal/application/incident"
	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/interfaces/http/dto"
)

// RemediationHandler 修复动作处理器
type RemediationHandler struct {
	svc *incident.RemediationService
}

// NewRemediationHandler 创建修复动作处理器
func NewRemediationHandler(svc *incident.RemediationService) *RemediationHandler {
	return &RemediationHandler{svc: svc}
}

// Create 创建修复动作
// @Summary 创建修复动作
// @Description 在事件下创建 pending 状态的修复动作，参数按动作类型校验
// @Tags Remediation
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param incident_id path string true "事件 ID"
// @Param request body dto.CreateRemediationRequest true "动作定义"
// @Success 201 {object} dto.Response[entity.RemediationAction]
// @Router /v1/projects/{project_id}/incidents/{incident_id}/actions [post]
func (h *RemediationHandler) Create(c *gin.Context) {
	req, ok := bindJSON[dto.CreateRemediationRequest](c)
	if !ok {
		return
	}

	action, err := h.svc.Create(c.Request.Context(), projectID(c), c.Param("incident_id"),
		entity.ActionType(req.ActionType), req.Parameters)
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Created(c, action)
}

// Apply 执行修复动作
// @Summary 执行修复动作
// @Description 翻转 executed 并写入项目约束；重复执行返回 409
// @Tags Remediation
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param incident_id path string true "事件 ID"
// @Param action_id path string true "动作 ID"
// @Success 200 {object} dto.Response[entity.RemediationAction]
// @Router /v1/projects/{project_id}/incidents/{incident_id}/actions/{action_id}/apply [post]
func (h *RemediationHandler) Apply(c *gin.Context) {
	action, err := h.svc.Apply(c.Request.Context(), projectID(c),
		c.Param("incident_id"), c.Param("action_id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, action)
}

// List 获取事件下全部修复动作
func (h *RemediationHandler) List(c *gin.Context) {
	actions, err := h.svc.ListActions(c.Request.Context(), projectID(c), c.Param("incident_id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, actions)
}

// Get 获取单个修复动作
func (h *RemediationHandler) Get(c *gin.Context) {
	action, err := h.svc.GetAction(c.Request.Context(), projectID(c),
		c.Param("incident_id"), c.Param("action_id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, action)
}

// Delete 删除未执行的修复动作
func (h *RemediationHandler) Delete(c *gin.Context) {
	err := h.svc.DeleteAction(c.Request.Context(), projectID(c),
		c.Param("incident_id"), c.Param("action_id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.NoContent(c)
}
