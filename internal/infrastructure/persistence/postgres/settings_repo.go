// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
)

// SettingsRepository 约束/设置仓储实现
type SettingsRepository struct {
	client *Client
}

// NewSettingsRepository 创建约束仓储
func NewSettingsRepository(client *Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

// GetConstraints 获取项目当前约束；从未写入时返回空约束
func (r *SettingsRepository) GetConstraints(ctx context.Context, projectID string) (*entity.ProjectConstraints, error) {
	ctx, span := tracer.Start(ctx, "postgres.SettingsRepository.GetConstraints")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var constraints entity.ProjectConstraints
	err := db.Where("project_id = ?", projectID).First(&constraints).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &entity.ProjectConstraints{ProjectID: projectID}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get constraints: %w", err)
	}

	// 过期约束视同不存在；清扫由 worker 周期执行
	if constraints.IsExpired(time.Now()) {
		return &entity.ProjectConstraints{ProjectID: projectID}, nil
	}

	return &constraints, nil
}

// ApplyConstraint 写入（upsert）一条项目约束
func (r *SettingsRepository) ApplyConstraint(ctx context.Context, projectID string, kind entity.ConstraintKind, value repository.ConstraintValue) error {
	ctx, span := tracer.Start(ctx, "postgres.SettingsRepository.ApplyConstraint")
	defer span.End()

	db := getDB(ctx, r.client.db)

	row := entity.ProjectConstraints{ProjectID: projectID, ExpiresAt: value.ExpiresAt}
	var columns []string

	switch kind {
	case entity.ConstraintRateLimit:
		limit := value.IntValue
		row.RateLimitPerMin = &limit
		columns = []string{"rate_limit_per_min"}
	case entity.ConstraintForcedModel:
		row.ForcedModel = value.StrValue
		columns = []string{"forced_model"}
	case entity.ConstraintSafetyThreshold:
		threshold := value.IntValue
		row.SafetyThreshold = &threshold
		columns = []string{"safety_threshold"}
	case entity.ConstraintSystemPrompt:
		row.SystemPrompt = value.StrValue
		columns = []string{"system_prompt"}
	case entity.ConstraintDisableEndpoint:
		// 追加而非覆盖，保留已禁用的其他端点
		return r.appendDisabledEndpoint(ctx, projectID, value)
	default:
		return fmt.Errorf("unknown constraint kind: %s", kind)
	}

	columns = append(columns, "expires_at", "updated_at")

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to apply constraint: %w", err)
	}
	return nil
}

// appendDisabledEndpoint 向禁用端点数组追加（去重）
func (r *SettingsRepository) appendDisabledEndpoint(ctx context.Context, projectID string, value repository.ConstraintValue) error {
	db := getDB(ctx, r.client.db)

	err := db.Exec(`
		INSERT INTO project_constraints (project_id, disabled_endpoints, expires_at, updated_at)
		VALUES (?, ARRAY[?]::text[], ?, NOW())
		ON CONFLICT (project_id) DO UPDATE SET
			disabled_endpoints = (
				SELECT ARRAY(SELECT DISTINCT e FROM unnest(
					COALESCE(project_constraints.disabled_endpoints, '{}'::text[]) || EXCLUDED.disabled_endpoints
				) AS e)
			),
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`, projectID, value.StrValue, value.ExpiresAt).Error
	if err != nil {
		return fmt.Errorf("failed to disable endpoint: %w", err)
	}
	return nil
}

// ResetConstraints 清空项目全部约束
func (r *SettingsRepository) ResetConstraints(ctx context.Context, projectID string) error {
	ctx, span := tracer.Start(ctx, "postgres.SettingsRepository.ResetConstraints")
	defer span.End()

	db := getDB(ctx, r.client.db)

	if err := db.Where("project_id = ?", projectID).
		Delete(&entity.ProjectConstraints{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to reset constraints: %w", err)
	}
	return nil
}

// SweepExpired 清理全部项目的过期约束
func (r *SettingsRepository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SettingsRepository.SweepExpired")
	defer span.End()

	db := getDB(ctx, r.client.db)

	result := db.Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Delete(&entity.ProjectConstraints{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, fmt.Errorf("failed to sweep expired constraints: %w", result.Error)
	}
	return result.RowsAffected, nil
}
