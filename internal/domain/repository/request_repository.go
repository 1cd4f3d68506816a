// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"llm-sentinel-api/internal/domain/entity"
)

// RequestRepository 请求日志仓储接口。
// 记录只追加，核心层不做删除（留存策略属于外部关注点）。
type RequestRepository interface {
	// Append 追加一条请求记录
	Append(ctx context.Context, record *entity.RequestRecord) error

	// Recent 按时间倒序返回项目最近的 limit 条记录
	Recent(ctx context.Context, projectID string, limit int) ([]*entity.RequestRecord, error)

	// ListByProject 分页获取项目请求记录
	ListByProject(ctx context.Context, projectID string, pagination Pagination) (*PagedResult[*entity.RequestRecord], error)
}
