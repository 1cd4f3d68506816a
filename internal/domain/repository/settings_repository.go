// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"llm-sentinel-api/internal/domain/entity"
)

// ConstraintValue 单条约束写入值
type ConstraintValue struct {
	// IntValue rate_limit / safety_threshold 使用
	IntValue int
	// StrValue forced_model / system_prompt / disable_endpoint 使用
	StrValue string
	// ExpiresAt 约束过期时间，nil 表示长期生效
	ExpiresAt *time.Time
}

// SettingsRepository 约束/设置仓储接口。
// 已执行修复动作通过它写入项目级约束，请求处理路径读取它。
type SettingsRepository interface {
	// GetConstraints 获取项目当前约束；从未写入时返回空约束
	GetConstraints(ctx context.Context, projectID string) (*entity.ProjectConstraints, error)

	// ApplyConstraint 写入（upsert）一条项目约束
	ApplyConstraint(ctx context.Context, projectID string, kind entity.ConstraintKind, value ConstraintValue) error

	// ResetConstraints 清空项目全部约束（reset_settings 的副作用）
	ResetConstraints(ctx context.Context, projectID string) error

	// SweepExpired 清理全部项目的过期约束，返回清理条数
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
