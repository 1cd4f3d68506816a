package detection

import (
	"context"
	"fmt"
	"time"

	apperrors "llm-sentinel-api/pkg/errors"
	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/metrics"

	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
	"llm-sentinel-api/internal/infrastructure/messaging"
)

// IncidentPublisher 事件通知发布接口
type IncidentPublisher interface {
	PublishIncidentEvent(ctx context.Context, msgType string, event *messaging.IncidentEventMessage) (string, error)
}

// Job 定时异常检测任务。
// 串行遍历项目，单个项目的失败只记录日志，不影响其余项目。
type Job struct {
	projectRepo  repository.ProjectRepository
	incidentRepo repository.IncidentRepository
	transactor   repository.Transactor
	detectors    *Detectors
	publisher    IncidentPublisher
}

// NewJob 创建检测任务
func NewJob(
	projectRepo repository.ProjectRepository,
	incidentRepo repository.IncidentRepository,
	transactor repository.Transactor,
	detectors *Detectors,
	publisher IncidentPublisher,
) *Job {
	return &Job{
		projectRepo:  projectRepo,
		incidentRepo: incidentRepo,
		transactor:   transactor,
		detectors:    detectors,
		publisher:    publisher,
	}
}

// Run 对全部活跃项目执行一轮检测。
// 永不返回错误，任何失败都在内部消化。
func (j *Job) Run(ctx context.Context) {
	start := time.Now()
	metrics.DetectionRunsTotal.Inc()

	projectIDs, err := j.projectRepo.ListAllIDs(ctx)
	if err != nil {
		logger.Error(ctx, "detection run failed to list projects", err)
		return
	}

	logger.Info(ctx, "detection run started", "projects", len(projectIDs))

	created := 0
	for _, projectID := range projectIDs {
		created += j.RunProject(ctx, projectID)
	}

	elapsed := time.Since(start)
	metrics.DetectionRunDuration.Observe(elapsed.Seconds())
	logger.Info(ctx, "detection run finished",
		"projects", len(projectIDs),
		"incidents_created", created,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// RunProject 对单个项目执行三类检测，返回新建事件数。
// 管理端手动触发单项目检测时也直接调用此方法。
func (j *Job) RunProject(ctx context.Context, projectID string) int {
	projectCtx := logger.WithContext(ctx, logger.ProjectIDKey, projectID)

	results := []*Result{
		j.detectors.DetectLatencyAnomalies(projectCtx, projectID),
		j.detectors.DetectRiskScoreAnomalies(projectCtx, projectID),
		j.detectors.DetectErrorRateAnomalies(projectCtx, projectID),
	}

	created := 0
	for _, result := range results {
		if result == nil || !result.Triggered {
			continue
		}

		metrics.DetectorTriggeredTotal.WithLabelValues(string(result.TriggerType)).Inc()

		incident, err := j.openIncident(projectCtx, projectID, result)
		if err != nil {
			metrics.DetectionProjectErrorsTotal.Inc()
			logger.Error(projectCtx, "failed to open incident", err,
				"trigger_type", string(result.TriggerType),
			)
			continue
		}
		if incident == nil {
			continue
		}

		created++
		metrics.IncidentsCreatedTotal.WithLabelValues(
			string(incident.TriggerType), string(incident.Severity),
		).Inc()
		logger.Info(projectCtx, "incident created",
			"incident_id", incident.ID,
			"trigger_type", string(incident.TriggerType),
			"severity", string(incident.Severity),
			"affected_requests", incident.AffectedRequests,
		)

		j.publishCreated(projectCtx, incident)
	}

	return created
}

// openIncident 在同一事务内完成去重检查与创建。
// 已有同触发类型的 open 事件时返回 (nil, nil)；
// 并发竞争触发唯一约束冲突时同样按去重处理。
func (j *Job) openIncident(ctx context.Context, projectID string, result *Result) (*entity.Incident, error) {
	var incident *entity.Incident

	err := j.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := j.incidentRepo.FindOpenByTrigger(txCtx, projectID, result.TriggerType)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		candidate := entity.NewIncident(projectID, deriveSeverity(result), result.TriggerType)
		candidate.RootCause = rootCause(result)
		candidate.RecommendedFix = recommendedFix(result.TriggerType)
		candidate.AffectedRequests = result.AnomalyCount
		candidate.Metadata = result.Metadata

		if err := j.incidentRepo.Create(txCtx, candidate); err != nil {
			return err
		}
		incident = candidate
		return nil
	})

	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeDuplicateIncident) {
			return nil, nil
		}
		return nil, err
	}
	return incident, nil
}

// publishCreated 发布事件创建通知，失败仅记录日志
func (j *Job) publishCreated(ctx context.Context, incident *entity.Incident) {
	if j.publisher == nil {
		return
	}

	_, err := j.publisher.PublishIncidentEvent(ctx, messaging.MsgTypeIncidentCreated, &messaging.IncidentEventMessage{
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

// deriveSeverity 根据异常幅度推导严重程度
func deriveSeverity(result *Result) entity.IncidentSeverity {
	switch result.TriggerType {
	case entity.TriggerRiskScoreAnomaly:
		if mean, ok := metaFloat(result.Metadata, "mean"); ok && mean >= 70 {
			return entity.SeverityHigh
		}
		return entity.SeverityLow
	case entity.TriggerErrorRateAnomaly:
		if delta, ok := metaFloat(result.Metadata, "delta"); ok && delta >= 0.5 {
			return entity.SeverityHigh
		}
		return entity.SeverityLow
	case entity.TriggerLatencyThreshold:
		mean, okMean := metaFloat(result.Metadata, "mean")
		maxValue, okMax := metaFloat(result.Metadata, "max_value")
		if okMean && okMax && mean > 0 && maxValue > 10*mean {
			return entity.SeverityHigh
		}
		return entity.SeverityMedium
	}
	return entity.SeverityLow
}

// rootCause 由检测元数据生成可读的根因描述
func rootCause(result *Result) string {
	switch result.TriggerType {
	case entity.TriggerLatencyThreshold:
		mean, _ := metaFloat(result.Metadata, "mean")
		maxValue, _ := metaFloat(result.Metadata, "max_value")
		return fmt.Sprintf("%d request(s) with latency far above the recent mean (mean %.0fms, peak %.0fms)",
			result.AnomalyCount, mean, maxValue)
	case entity.TriggerRiskScoreAnomaly:
		mean, _ := metaFloat(result.Metadata, "mean")
		return fmt.Sprintf("%d request(s) with risk score far from the recent mean (mean %.1f)",
			result.AnomalyCount, mean)
	case entity.TriggerErrorRateAnomaly:
		recent, _ := metaFloat(result.Metadata, "recent_rate")
		baseline, _ := metaFloat(result.Metadata, "baseline_rate")
		return fmt.Sprintf("error rate rose to %.0f%% against a baseline of %.0f%%",
			recent*100, baseline*100)
	}
	return "anomalous behavior detected in recent requests"
}

// recommendedFix 按触发类型给出建议处置
func recommendedFix(triggerType entity.TriggerType) string {
	switch triggerType {
	case entity.TriggerLatencyThreshold:
		return "Investigate provider latency; consider switching to a faster model"
	case entity.TriggerRiskScoreAnomaly:
		return "Review the flagged prompts; consider raising the safety threshold"
	case entity.TriggerErrorRateAnomaly:
		return "Inspect recent failures; consider switching model or disabling the affected endpoint"
	}
	return "Review recent request history for this project"
}

func metaFloat(metadata map[string]any, key string) (float64, bool) {
	if metadata == nil {
		return 0, false
	}
	switch v := metadata[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
