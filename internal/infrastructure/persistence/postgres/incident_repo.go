// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
	apperrors "llm-sentinel-api/pkg/errors"
)

// IncidentRepository 事件仓储实现
type IncidentRepository struct {
	client *Client
}

// NewIncidentRepository 创建事件仓储
func NewIncidentRepository(client *Client) *IncidentRepository {
	return &IncidentRepository{client: client}
}

// Create 创建事件。
// open 事件的 (project_id, trigger_type) 唯一性由部分唯一索引保证，
// 并发重复创建被翻译为 CodeDuplicateIncident 冲突。
func (r *IncidentRepository) Create(ctx context.Context, incident *entity.Incident) error {
	ctx, span := tracer.Start(ctx, "postgres.IncidentRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(incident).Error; err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict(apperrors.CodeDuplicateIncident,
				"open incident already exists for this trigger type").WithError(err)
		}
		return fmt.Errorf("failed to create incident: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取事件
func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*entity.Incident, error) {
	ctx, span := tracer.Start(ctx, "postgres.IncidentRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var incident entity.Incident
	err := db.Where("id = ?", id).First(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return &incident, nil
}

// FindOpenByTrigger 查找项目下指定触发类型的 open 事件
func (r *IncidentRepository) FindOpenByTrigger(ctx context.Context, projectID string, triggerType entity.TriggerType) (*entity.Incident, error) {
	ctx, span := tracer.Start(ctx, "postgres.IncidentRepository.FindOpenByTrigger")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var incident entity.Incident
	err := db.
		Where("project_id = ? AND trigger_type = ? AND status = ?",
			projectID, triggerType, entity.IncidentStatusOpen).
		First(&incident).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find open incident: %w", err)
	}
	return &incident, nil
}

// Resolve 以 compare-and-set 方式将 open 事件置为 resolved
func (r *IncidentRepository) Resolve(ctx context.Context, id string, resolvedAt time.Time) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.IncidentRepository.Resolve")
	defer span.End()

	db := getDB(ctx, r.client.db)

	result := db.Model(&entity.Incident{}).
		Where("id = ? AND status = ?", id, entity.IncidentStatusOpen).
		Updates(map[string]any{
			"status":      entity.IncidentStatusResolved,
			"resolved_at": resolvedAt,
		})
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("failed to resolve incident: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListByProject 分页获取项目事件
func (r *IncidentRepository) ListByProject(ctx context.Context, projectID string, filter *repository.IncidentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Incident], error) {
	ctx, span := tracer.Start(ctx, "postgres.IncidentRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)

	query := db.Model(&entity.Incident{}).Where("project_id = ?", projectID)
	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.TriggerType != "" {
			query = query.Where("trigger_type = ?", filter.TriggerType)
		}
		if filter.Severity != "" {
			query = query.Where("severity = ?", filter.Severity)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}

	var incidents []*entity.Incident
	err := query.
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&incidents).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}

	return repository.NewPagedResult(incidents, total, pagination), nil
}
