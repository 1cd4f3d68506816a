// Package telemetry 提供 LLM 调用遥测采集用例
package telemetry

import (
	"context"
	"strings"

	apperrors "llm-sentinel-api/pkg/errors"
	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/metrics"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
	"llm-sentinel-api/internal/domain/service"
)

// LogInput 一次 LLM 调用的上报数据
type LogInput struct {
	ProjectID string
	Prompt    string
	Response  string
	Model     string
	LatencyMs int
	Tokens    int
	ErrorText string
}

// Recorder 遥测采集服务。
// 写入路径同步计算风险评分，记录落库后不再变更。
type Recorder struct {
	projectRepo repository.ProjectRepository
	requestRepo repository.RequestRepository
}

// NewRecorder 创建遥测采集服务
func NewRecorder(projectRepo repository.ProjectRepository, requestRepo repository.RequestRepository) *Recorder {
	return &Recorder{
		projectRepo: projectRepo,
		requestRepo: requestRepo,
	}
}

// LogRequest 记录一次 LLM 调用并计算风险评分
func (r *Recorder) LogRequest(ctx context.Context, in LogInput) (*entity.RequestRecord, error) {
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	if in.ProjectID == "" {
		return nil, apperrors.Validation("project_id is required")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, apperrors.Validation("prompt is required")
	}
	if in.LatencyMs < 0 {
		return nil, apperrors.Validation("latency_ms must not be negative")
	}
	if in.Tokens < 0 {
		return nil, apperrors.Validation("tokens must not be negative")
	}

	project, err := r.projectRepo.GetByID(ctx, in.ProjectID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load project")
	}
	if project == nil {
		return nil, apperrors.NotFound(apperrors.CodeProjectNotFound, "project not found")
	}

	model := strings.TrimSpace(in.Model)
	if model == "" {
		model = project.DefaultModel
	}

	result := service.ScoreRequest(service.ScoreInput{
		Prompt:   in.Prompt,
		Response: in.Response,
		Model:    model,
		Tokens:   in.Tokens,
		HasError: in.ErrorText != "",
	})

	record := &entity.RequestRecord{
		ProjectID: in.ProjectID,
		Prompt:    in.Prompt,
		Response:  in.Response,
		Model:     model,
		LatencyMs: in.LatencyMs,
		Tokens:    in.Tokens,
		ErrorText: in.ErrorText,
		RiskScore: result.FinalScore,
	}

	if err := r.requestRepo.Append(ctx, record); err != nil {
		return nil, apperrors.Internal(err, "failed to append request record")
	}

	metrics.RequestsScoredTotal.WithLabelValues(in.ProjectID, model).Inc()
	metrics.RiskScoreDistribution.Observe(float64(result.FinalScore))

	logger.Debug(ctx, "request logged",
		"project_id", in.ProjectID,
		"record_id", record.ID,
		"model", model,
		"risk_score", result.FinalScore,
	)

	return record, nil
}

// ListRequests 分页获取项目请求记录
func (r *Recorder) ListRequests(ctx context.Context, projectID string, pagination repository.Pagination) (*repository.PagedResult[*entity.RequestRecord], error) {
	project, err := r.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to load project")
	}
	if project == nil {
		return nil, apperrors.NotFound(apperrors.CodeProjectNotFound, "project not found")
	}

	result, err := r.requestRepo.ListByProject(ctx, projectID, pagination)
	if err != nil {
		return nil, apperrors.Internal(err, "failed to list request records")
	}
	return result, nil
}
