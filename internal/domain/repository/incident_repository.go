// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"llm-sentinel-api/internal/domain/entity"
)

// IncidentFilter 事件过滤条件
type IncidentFilter struct {
	Status      entity.IncidentStatus
	TriggerType entity.TriggerType
	Severity    entity.IncidentSeverity
}

// IncidentRepository 事件仓储接口
type IncidentRepository interface {
	// Create 创建事件。
	// 同一 (project, trigger_type) 已存在 open 事件时返回 CodeDuplicateIncident 冲突，
	// 由存储层唯一约束保证并发安全。
	Create(ctx context.Context, incident *entity.Incident) error

	// GetByID 根据 ID 获取事件；不存在时返回 nil
	GetByID(ctx context.Context, id string) (*entity.Incident, error)

	// FindOpenByTrigger 查找项目下指定触发类型的 open 事件；不存在时返回 nil
	FindOpenByTrigger(ctx context.Context, projectID string, triggerType entity.TriggerType) (*entity.Incident, error)

	// Resolve 以 compare-and-set 方式将 open 事件置为 resolved。
	// 返回 false 表示事件不处于 open 状态（写入时再次校验，并发安全）。
	Resolve(ctx context.Context, id string, resolvedAt time.Time) (bool, error)

	// ListByProject 分页获取项目事件
	ListByProject(ctx context.Context, projectID string, filter *IncidentFilter, pagination Pagination) (*PagedResult[*entity.Incident], error)
}
