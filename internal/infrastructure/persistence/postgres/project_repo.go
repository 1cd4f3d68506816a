// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"llm-sentinel-api/internal/domain/entity"
)

// ProjectRepository 项目目录实现
type ProjectRepository struct {
	client *Client
}

// NewProjectRepository 创建项目目录仓储
func NewProjectRepository(client *Client) *ProjectRepository {
	return &ProjectRepository{client: client}
}

// GetByID 根据 ID 获取项目
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var project entity.Project
	err := db.Where("id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// ListAllIDs 返回全部活跃项目 ID
func (r *ProjectRepository) ListAllIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProjectRepository.ListAllIDs")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var ids []string
	err := db.Model(&entity.Project{}).
		Where("status = ?", entity.ProjectStatusActive).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list project ids: %w", err)
	}
	return ids, nil
}
