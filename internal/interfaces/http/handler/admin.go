package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"llm-sentinel-api/internal/infrastructure/messaging"
	"llm-sentinel-api/internal/interfaces/http/dto"
)

// AdminHandler 管理端处理器
type AdminHandler struct {
	producer *messaging.Producer
}

// NewAdminHandler 创建管理端处理器
func NewAdminHandler(producer *messaging.Producer) *AdminHandler {
	return &AdminHandler{producer: producer}
}

// TriggerDetectionResponse 检测触发响应
type TriggerDetectionResponse struct {
	RunID string `json:"run_id"`
}

// TriggerDetection 手动触发一轮异常检测。
// 仅投递任务消息，实际检测由 worker 异步执行。
// @Summary 触发检测
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body dto.TriggerDetectionRequest false "检测范围"
// @Success 202 {object} dto.Response[TriggerDetectionResponse]
// @Router /v1/admin/detection/run [post]
func (h *AdminHandler) TriggerDetection(c *gin.Context) {
	var req dto.TriggerDetectionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}

	runID := uuid.New().String()
	_, err := h.producer.PublishDetectionRun(c.Request.Context(), runID, &messaging.DetectionRunMessage{
		ProjectID:   req.ProjectID,
		RequestedBy: c.GetString("auth_project_id"),
	})
	if err != nil {
		dto.InternalError(c, "failed to enqueue detection run")
		return
	}

	dto.Accepted(c, TriggerDetectionResponse{RunID: runID})
}
