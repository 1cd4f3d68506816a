package dto

import (
	"llm-sentinel-api/internal/domain/repository"
)

// LogRequestRequest 上报一次 LLM 调用
type LogRequestRequest struct {
	Prompt    string `json:"prompt" binding:"required"`
	Response  string `json:"response"`
	Model     string `json:"model"`
	LatencyMs int    `json:"latency_ms" binding:"min=0"`
	Tokens    int    `json:"tokens" binding:"min=0"`
	ErrorText string `json:"error_text"`
}

// CreateRemediationRequest 创建修复动作
type CreateRemediationRequest struct {
	ActionType string         `json:"action_type" binding:"required"`
	Parameters map[string]any `json:"parameters" binding:"required"`
}

// TriggerDetectionRequest 手动触发检测
type TriggerDetectionRequest struct {
	// ProjectID 为空时对全部项目检测
	ProjectID string `json:"project_id"`
}

// PageQuery 分页查询参数
type PageQuery struct {
	Page     int `form:"page,default=1"`
	PageSize int `form:"page_size,default=20"`
}

// Pagination 转换为仓储分页参数
func (q PageQuery) Pagination() repository.Pagination {
	return repository.NewPagination(q.Page, q.PageSize)
}

// IncidentListQuery 事件列表过滤参数
type IncidentListQuery struct {
	PageQuery
	Status      string `form:"status"`
	TriggerType string `form:"trigger_type"`
	Severity    string `form:"severity"`
}
