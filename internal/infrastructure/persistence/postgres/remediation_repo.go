// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"llm-sentinel-api/internal/domain/entity"
)

// RemediationRepository 修复动作仓储实现
type RemediationRepository struct {
	client *Client
}

// NewRemediationRepository 创建修复动作仓储
func NewRemediationRepository(client *Client) *RemediationRepository {
	return &RemediationRepository{client: client}
}

// Create 创建修复动作
func (r *RemediationRepository) Create(ctx context.Context, action *entity.RemediationAction) error {
	ctx, span := tracer.Start(ctx, "postgres.RemediationRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(action).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create remediation action: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取修复动作
func (r *RemediationRepository) GetByID(ctx context.Context, id string) (*entity.RemediationAction, error) {
	ctx, span := tracer.Start(ctx, "postgres.RemediationRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var action entity.RemediationAction
	err := db.Where("id = ?", id).First(&action).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get remediation action: %w", err)
	}
	return &action, nil
}

// MarkExecuted 以 compare-and-set 方式将动作置为已执行。
// WHERE executed = false 保证并发的两次 apply 只有一次生效。
func (r *RemediationRepository) MarkExecuted(ctx context.Context, id string, executedAt time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.RemediationRepository.MarkExecuted")
	defer span.End()

	db := getDB(ctx, r.client.db)

	result := db.Model(&entity.RemediationAction{}).
		Where("id = ? AND executed = ?", id, false).
		Updates(map[string]any{
			"executed":    true,
			"executed_at": executedAt,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to mark remediation executed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListByIncident 获取事件下全部修复动作
func (r *RemediationRepository) ListByIncident(ctx context.Context, incidentID string) ([]*entity.RemediationAction, error) {
	ctx, span := tracer.Start(ctx, "postgres.RemediationRepository.ListByIncident")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var actions []*entity.RemediationAction
	err := db.
		Where("incident_id = ?", incidentID).
		Order("created_at ASC").
		Find(&actions).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list remediation actions: %w", err)
	}
	return actions, nil
}

// Delete 删除未执行的修复动作
func (r *RemediationRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.RemediationRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)

	if err := db.Where("id = ? AND executed = ?", id, false).
		Delete(&entity.RemediationAction{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete remediation action: %w", err)
	}
	return nil
}
