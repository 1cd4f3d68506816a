// Package constraint 提供项目约束读取与清理用例
package constraint

import (
	"context"
	"time"

	apperrors "llm-sentinel-api/pkg/errors"
	"llm-sentinel-api/pkg/logger"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
	redisinfra "llm-sentinel-api/internal/infrastructure/persistence/redis"
)

// Cache 约束缓存读取接口
type Cache interface {
	Get(ctx context.Context, projectID string, loader redisinfra.ConstraintLoader) (*entity.ProjectConstraints, error)
}

// Service 约束读取服务。
// 请求处理路径通过它获取项目当前约束，缓存未命中时回源约束存储。
type Service struct {
	settingsRepo repository.SettingsRepository
	cache        Cache
}

// NewService 创建约束服务；cache 可为 nil，此时直接回源
func NewService(settingsRepo repository.SettingsRepository, cache Cache) *Service {
	return &Service{
		settingsRepo: settingsRepo,
		cache:        cache,
	}
}

// Get 获取项目当前生效约束。
// 缓存中的过期约束视同不存在，等待清理任务回收。
func (s *Service) Get(ctx context.Context, projectID string) (*entity.ProjectConstraints, error) {
	loader := func(ctx context.Context, projectID string) (*entity.ProjectConstraints, error) {
		return s.settingsRepo.GetConstraints(ctx, projectID)
	}

	var constraints *entity.ProjectConstraints
	var err error
	if s.cache != nil {
		constraints, err = s.cache.Get(ctx, projectID, loader)
	} else {
		constraints, err = loader(ctx, projectID)
	}
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load project constraints")
	}

	if constraints.IsExpired(time.Now()) {
		return &entity.ProjectConstraints{ProjectID: projectID}, nil
	}
	return constraints, nil
}

// Sweep 清理全部项目的过期约束。
// 缓存不做逐项失效，靠短 TTL 自然收敛。
func (s *Service) Sweep(ctx context.Context) {
	removed, err := s.settingsRepo.SweepExpired(ctx, time.Now())
	if err != nil {
		logger.Error(ctx, "constraint sweep failed", err)
		return
	}
	if removed > 0 {
		logger.Info(ctx, "expired constraints swept", "removed", removed)
	}
}
