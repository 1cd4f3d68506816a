package incident

import (
	"context"
	"fmt"
	"time"

	apperrors "llm-sentinel-api/pkg/errors"
	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/metrics"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
)

// ConstraintInvalidator 约束缓存失效接口
type ConstraintInvalidator interface {
	Invalidate(ctx context.Context, projectID string) error
}

// RemediationService 修复动作生命周期服务。
// apply 的副作用与 executed 翻转在同一事务内完成，
// 并发 apply 只有一方能执行副作用。
type RemediationService struct {
	incidentRepo    repository.IncidentRepository
	remediationRepo repository.RemediationRepository
	settingsRepo    repository.SettingsRepository
	transactor      repository.Transactor
	cache           ConstraintInvalidator
}

// NewRemediationService 创建修复动作服务
func NewRemediationService(
	incidentRepo repository.IncidentRepository,
	remediationRepo repository.RemediationRepository,
	settingsRepo repository.SettingsRepository,
	transactor repository.Transactor,
	cache ConstraintInvalidator,
) *RemediationService {
	return &RemediationService{
		incidentRepo:    incidentRepo,
		remediationRepo: remediationRepo,
		settingsRepo:    settingsRepo,
		transactor:      transactor,
		cache:           cache,
	}
}

// Create 在事件下创建处于 pending 状态的修复动作
func (s *RemediationService) Create(ctx context.Context, projectID, incidentID string, actionType entity.ActionType, parameters map[string]any) (*entity.RemediationAction, error) {
	if _, err := s.loadIncident(ctx, projectID, incidentID); err != nil {
		return nil, err
	}

	if !entity.ValidActionType(actionType) {
		return nil, apperrors.New(apperrors.CodeInvalidActionType,
			fmt.Sprintf("unknown action type: %s", actionType))
	}
	if _, err := entity.ParseActionParams(actionType, parameters); err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidActionParams, err.Error())
	}

	action, err := entity.NewRemediationAction(incidentID, actionType, parameters)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidActionParams, err.Error())
	}

	if err := s.remediationRepo.Create(ctx, action); err != nil {
		return nil, apperrors.Internal(err, "failed to create remediation action")
	}

	logger.Info(ctx, "remediation action created",
		"project_id", projectID,
		"incident_id", incidentID,
		"action_id", action.ID,
		"action_type", string(actionType),
	)
	return action, nil
}

// Apply 执行修复动作：翻转 executed 并写入对应约束。
// 已执行动作再次 apply 返回冲突。
func (s *RemediationService) Apply(ctx context.Context, projectID, incidentID, actionID string) (*entity.RemediationAction, error) {
	if _, err := s.loadIncident(ctx, projectID, incidentID); err != nil {
		return nil, err
	}

	action, err := s.loadAction(ctx, incidentID, actionID)
	if err != nil {
		return nil, err
	}
	if action.Executed {
		return nil, apperrors.Conflict(apperrors.CodeRemediationApplied, "remediation action already applied")
	}

	params, err := entity.ParseActionParams(action.ActionType, action.Parameters)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeInvalidActionParams, err.Error())
	}

	now := time.Now()
	err = s.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.remediationRepo.MarkExecuted(txCtx, actionID, now)
		if err != nil {
			return apperrors.Internal(err, "failed to mark remediation executed")
		}
		if !ok {
			return apperrors.Conflict(apperrors.CodeRemediationApplied, "remediation action already applied")
		}
		return s.applyConstraint(txCtx, projectID, params)
	})
	if err != nil {
		if appErr := apperrors.AsAppError(err); appErr != nil {
			return nil, appErr
		}
		return nil, apperrors.Internal(err, "failed to apply remediation action")
	}

	action.Executed = true
	action.ExecutedAt = &now

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, projectID); err != nil {
			logger.Warn(ctx, "failed to invalidate constraint cache",
				"project_id", projectID,
				"error", err.Error(),
			)
		}
	}

	metrics.RemediationsAppliedTotal.WithLabelValues(string(action.ActionType)).Inc()
	logger.Info(ctx, "remediation action applied",
		"project_id", projectID,
		"incident_id", incidentID,
		"action_id", actionID,
		"action_type", string(action.ActionType),
	)
	return action, nil
}

// GetAction 获取事件下的修复动作
func (s *RemediationService) GetAction(ctx context.Context, projectID, incidentID, actionID string) (*entity.RemediationAction, error) {
	if _, err := s.loadIncident(ctx, projectID, incidentID); err != nil {
		return nil, err
	}
	return s.loadAction(ctx, incidentID, actionID)
}

// ListActions 获取事件下全部修复动作
func (s *RemediationService) ListActions(ctx context.Context, projectID, incidentID string) ([]*entity.RemediationAction, error) {
	if _, err := s.loadIncident(ctx, projectID, incidentID); err != nil {
		return nil, err
	}

	actions, err := s.remediationRepo.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list remediation actions")
	}
	return actions, nil
}

// DeleteAction 删除未执行的修复动作；已执行的动作不可删除
func (s *RemediationService) DeleteAction(ctx context.Context, projectID, incidentID, actionID string) error {
	if _, err := s.loadIncident(ctx, projectID, incidentID); err != nil {
		return err
	}

	action, err := s.loadAction(ctx, incidentID, actionID)
	if err != nil {
		return err
	}
	if action.Executed {
		return apperrors.Conflict(apperrors.CodeRemediationApplied, "cannot delete an applied remediation action")
	}

	if err := s.remediationRepo.Delete(ctx, actionID); err != nil {
		return apperrors.Internal(err, "failed to delete remediation action")
	}
	return nil
}

// applyConstraint 按动作类型写入约束存储
func (s *RemediationService) applyConstraint(ctx context.Context, projectID string, params entity.ActionParams) error {
	switch p := params.(type) {
	case entity.SwitchModelParams:
		return s.settingsRepo.ApplyConstraint(ctx, projectID, entity.ConstraintForcedModel,
			repository.ConstraintValue{StrValue: p.NewModel})
	case entity.SafetyThresholdParams:
		return s.settingsRepo.ApplyConstraint(ctx, projectID, entity.ConstraintSafetyThreshold,
			repository.ConstraintValue{IntValue: p.NewThreshold})
	case entity.DisableEndpointParams:
		return s.settingsRepo.ApplyConstraint(ctx, projectID, entity.ConstraintDisableEndpoint,
			repository.ConstraintValue{StrValue: p.Endpoint})
	case entity.ChangeSystemPromptParams:
		return s.settingsRepo.ApplyConstraint(ctx, projectID, entity.ConstraintSystemPrompt,
			repository.ConstraintValue{StrValue: p.NewPrompt})
	case entity.RateLimitUserParams:
		value := repository.ConstraintValue{IntValue: p.NewLimit}
		if p.Duration != "" {
			// 构造期已校验过格式
			d, _ := time.ParseDuration(p.Duration)
			expires := time.Now().Add(d)
			value.ExpiresAt = &expires
		}
		return s.settingsRepo.ApplyConstraint(ctx, projectID, entity.ConstraintRateLimit, value)
	case entity.ResetSettingsParams:
		return s.settingsRepo.ResetConstraints(ctx, projectID)
	}
	return fmt.Errorf("unhandled action params type %T", params)
}

func (s *RemediationService) loadIncident(ctx context.Context, projectID, incidentID string) (*entity.Incident, error) {
	incident, err := s.incidentRepo.GetByID(ctx, incidentID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load incident")
	}
	if incident == nil || incident.ProjectID != projectID {
		return nil, apperrors.NotFound(apperrors.CodeIncidentNotFound, "incident not found")
	}
	return incident, nil
}

func (s *RemediationService) loadAction(ctx context.Context, incidentID, actionID string) (*entity.RemediationAction, error) {
	action, err := s.remediationRepo.GetByID(ctx, actionID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load remediation action")
	}
	if action == nil || action.IncidentID != incidentID {
		return nil, apperrors.NotFound(apperrors.CodeRemediationNotFound, "remediation action not found")
	}
	return action, nil
}
