// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"llm-sentinel-api/internal/domain/entity"
)

// RemediationRepository 修复动作仓储接口
type RemediationRepository interface {
	// Create 创建修复动作（pending 状态）
	Create(ctx context.Context, action *entity.RemediationAction) error

	// GetByID 根据 ID 获取修复动作；不存在时返回 nil
	GetByID(ctx context.Context, id string) (*entity.RemediationAction, error)

	// MarkExecuted 以 compare-and-set 方式将动作置为已执行。
	// 返回 false 表示动作已被执行（写入时校验 executed = false，并发安全）。
	MarkExecuted(ctx context.Context, id string, executedAt time.Time) (bool, error)

	// ListByIncident 获取事件下全部修复动作
	ListByIncident(ctx context.Context, incidentID string) ([]*entity.RemediationAction, error)

	// Delete 删除未执行的修复动作
	Delete(ctx context.Context, id string) error
}
