package handler

import (
	"github.com/gin-gonic/gin"

	"llm-sentinel-api/internal/application/telemetry"
	"llm-sentinel-api/internal/interfaces/http/dto"
	"llm-sentinel-api/internal/interfaces/http/middleware"
)

// TelemetryHandler 遥测采集处理器
type TelemetryHandler struct {
	recorder *telemetry.Recorder
}

// NewTelemetryHandler 创建遥测处理器
func NewTelemetryHandler(recorder *telemetry.Recorder) *TelemetryHandler {
	return &TelemetryHandler{recorder: recorder}
}

// LogRequest 上报一次 LLM 调用
// @Summary 上报 LLM 调用
// @Description 记录一次 LLM 调用并同步计算风险评分
// @Tags Telemetry
// @Accept json
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param request body dto.LogRequestRequest true "调用数据"
// @Success 201 {object} dto.Response[entity.RequestRecord]
// @Router /v1/projects/{project_id}/requests [post]
func (h *TelemetryHandler) LogRequest(c *gin.Context) {
	req, ok := bindJSON[dto.LogRequestRequest](c)
	if !ok {
		return
	}

	model := req.Model
	// forced_model 约束覆盖调用方指定的模型
	if constraints := middleware.ConstraintsFromContext(c); constraints != nil && constraints.ForcedModel != "" {
		model = constraints.ForcedModel
	}

	record, err := h.recorder.LogRequest(c.Request.Context(), telemetry.LogInput{
		ProjectID: projectID(c),
		Prompt:    req.Prompt,
		Response:  req.Response,
		Model:     model,
		LatencyMs: req.LatencyMs,
		Tokens:    req.Tokens,
		ErrorText: req.ErrorText,
	})
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Created(c, record)
}

// ListRequests 分页获取项目请求记录
// @Summary 请求记录列表
// @Tags Telemetry
// @Produce json
// @Param project_id path string true "项目 ID"
// @Success 200 {object} dto.Response[[]entity.RequestRecord]
// @Router /v1/projects/{project_id}/requests [get]
func (h *TelemetryHandler) ListRequests(c *gin.Context) {
	query, ok := bindQuery[dto.PageQuery](c)
	if !ok {
		return
	}

	result, err := h.recorder.ListRequests(c.Request.Context(), projectID(c), query.Pagination())
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.SuccessWithPage(c, result.Items, dto.PageMetaFrom(result))
}
