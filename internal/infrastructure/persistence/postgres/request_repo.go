// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"fmt"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
)

// RequestRepository 请求日志仓储实现
type RequestRepository struct {
	client *Client
}

// NewRequestRepository 创建请求日志仓储
func NewRequestRepository(client *Client) *RequestRepository {
	return &RequestRepository{client: client}
}

// Append 追加一条请求记录
func (r *RequestRepository) Append(ctx context.Context, record *entity.RequestRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.Append")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(record).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to append request record: %w", err)
	}
	return nil
}

// Recent 按时间倒序返回项目最近的 limit 条记录
func (r *RequestRepository) Recent(ctx context.Context, projectID string, limit int) ([]*entity.RequestRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.Recent")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	db := getDB(ctx, r.client.db)

	var records []*entity.RequestRecord
	err := db.
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list recent requests: %w", err)
	}
	return records, nil
}

// ListByProject 分页获取项目请求记录
func (r *RequestRepository) ListByProject(ctx context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.RequestRecord], error) {
	ctx, span := tracer.Start(ctx, "postgres.RequestRepository.ListByProject")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.RequestRecord{}).
		Where("project_id = ?", projectID).
		Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count requests: %w", err)
	}

	var records []*entity.RequestRecord
	err := db.
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&records).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	return repository.NewPagedResult(records, total, pagination), nil
}
