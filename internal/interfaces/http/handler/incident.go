package handler

import (
	"github.com/gin-gonic/gin"

	"llm-sentinel-api/internal/application/incident"
	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
	"llm-sentinel-api/internal/interfaces/http/dto"
)

// IncidentHandler 事件生命周期处理器
type IncidentHandler struct {
	svc *incident.Service
}

// NewIncidentHandler 创建事件处理器
func NewIncidentHandler(svc *incident.Service) *IncidentHandler {
	return &IncidentHandler{svc: svc}
}

// List 分页获取项目事件
// @Summary 事件列表
// @Tags Incident
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param status query string false "状态过滤 open|resolved"
// @Success 200 {object} dto.Response[[]entity.Incident]
// @Router /v1/projects/{project_id}/incidents [get]
func (h *IncidentHandler) List(c *gin.Context) {
	query, ok := bindQuery[dto.IncidentListQuery](c)
	if !ok {
		return
	}

	filter := &repository.IncidentFilter{
		Status:      entity.IncidentStatus(query.Status),
		TriggerType: entity.TriggerType(query.TriggerType),
		Severity:    entity.IncidentSeverity(query.Severity),
	}

	result, err := h.svc.List(c.Request.Context(), projectID(c), filter, query.Pagination())
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.SuccessWithPage(c, result.Items, dto.PageMetaFrom(result))
}

// Get 获取单个事件
// @Summary 事件详情
// @Tags Incident
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param incident_id path string true "事件 ID"
// @Success 200 {object} dto.Response[entity.Incident]
// @Router /v1/projects/{project_id}/incidents/{incident_id} [get]
func (h *IncidentHandler) Get(c *gin.Context) {
	result, err := h.svc.Get(c.Request.Context(), projectID(c), c.Param("incident_id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, result)
}

// Resolve 解决事件
// @Summary 解决事件
// @Description 将 open 事件置为 resolved；重复解决返回 409
// @Tags Incident
// @Produce json
// @Param project_id path string true "项目 ID"
// @Param incident_id path string true "事件 ID"
// @Success 200 {object} dto.Response[entity.Incident]
// @Router /v1/projects/{project_id}/incidents/{incident_id}/resolve [post]
func (h *IncidentHandler) Resolve(c *gin.Context) {
	result, err := h.svc.Resolve(c.Request.Context(), projectID(c), c.Param("incident_id"))
	if err != nil {
		dto.FromError(c, err)
		return
	}

	dto.Success(c, result)
}
