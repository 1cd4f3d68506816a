// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"llm-sentinel-api/internal/domain/entity"
)

// ProjectRepository 项目目录接口。
// 项目 CRUD 属于外部协作方，核心层只消费只读视图。
type ProjectRepository interface {
	// GetByID 根据 ID 获取项目；不存在时返回 nil
	GetByID(ctx context.Context, id string) (*entity.Project, error)

	// ListAllIDs 返回全部活跃项目 ID（定时检测任务遍历用）
	ListAllIDs(ctx context.Context) ([]string, error)
}
