// Package incident 提供事件与修复动作生命周期用例
package incident

import (
	"context"
	"time"

	apperrors "llm-sentinel-api/pkg/errors"
	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/metrics"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
	"llm-sentinel-api/internal/infrastructure/messaging"
)

// EventPublisher 事件通知发布接口
type EventPublisher interface {
	PublishIncidentEvent(ctx context.Context, msgType string, event *messaging.IncidentEventMessage) (string, error)
}

// Service 事件生命周期服务
type Service struct {
	incidentRepo repository.IncidentRepository
	publisher    EventPublisher
}

// NewService 创建事件服务
func NewService(incidentRepo repository.IncidentRepository, publisher EventPublisher) *Service {
	return &Service{
		incidentRepo: incidentRepo,
		publisher:    publisher,
	}
}

// Resolve 将事件置为 resolved。
// 事件不存在或不属于该项目返回 NotFound；
// 重复解决按冲突处理，不做静默忽略。
func (s *Service) Resolve(ctx context.Context, projectID, incidentID string) (*entity.Incident, error) {
	incident, err := s.load(ctx, projectID, incidentID)
	if err != nil {
		return nil, err
	}

	if !incident.IsOpen() {
		return nil, apperrors.Conflict(apperrors.CodeIncidentResolved, "incident already resolved")
	}

	now := time.Now()
	ok, err := s.incidentRepo.Resolve(ctx, incidentID, now)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to resolve incident")
	}
	if !ok {
		// 读取后到写入前被并发解决
		return nil, apperrors.Conflict(apperrors.CodeIncidentResolved, "incident already resolved")
	}

	incident.Status = entity.IncidentStatusResolved
	incident.ResolvedAt = &now

	metrics.IncidentsResolvedTotal.Inc()
	logger.Info(ctx, "incident resolved",
		"project_id", projectID,
		"incident_id", incidentID,
	)

	s.publishResolved(ctx, incident)
	return incident, nil
}

// Get 获取项目下的事件
func (s *Service) Get(ctx context.Context, projectID, incidentID string) (*entity.Incident, error) {
	return s.load(ctx, projectID, incidentID)
}

// List 分页获取项目事件
func (s *Service) List(ctx context.Context, projectID string, filter *repository.IncidentFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.Incident], error) {
	result, err := s.incidentRepo.ListByProject(ctx, projectID, filter, pagination)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list incidents")
	}
	return result, nil
}

// load 加载事件并校验项目归属
func (s *Service) load(ctx context.Context, projectID, incidentID string) (*entity.Incident, error) {
	incident, err := s.incidentRepo.GetByID(ctx, incidentID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load incident")
	}
	if incident == nil || incident.ProjectID != projectID {
		return nil, apperrors.NotFound(apperrors.CodeIncidentNotFound, "incident not found")
	}
	return incident, nil
}

func (s *Service) publishResolved(ctx context.Context, incident *entity.Incident) {
	if s.publisher == nil {
		return
	}

	_, err := s.publisher.PublishIncidentEvent(ctx, messaging.MsgTypeIncidentResolved, &messaging.IncidentEventMessage{
		IncidentID:  incident.ID,
		ProjectID:   incident.ProjectID,
		TriggerType: string(incident.TriggerType),
		Severity:    string(incident.Severity),
		Status:      string(incident.Status),
	})
	if err != nil {
		logger.Warn(ctx, "failed to publish incident event",
			"incident_id", incident.ID,
			"error", err.Error(),
		)
	}
}
