// Package detection 提供历史窗口上的异常检测用例
package detection

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"llm-sentinel-api/pkg/logger"
	"llm-sentinel-api/pkg/stats"

	"llm-sentinel-api/internal/config"
	"llm-sentinel-api/internal/domain/entity"
	"llm-sentinel-api/internal/domain/repository"
)

var tracer = otel.Tracer("detection")

// Result 单个检测器的产出，仅在一次检测过程中存在，不落库
type Result struct {
	Triggered    bool
	TriggerType  entity.TriggerType
	AnomalyCount int
	Metadata     map[string]any
}

// Detectors 三类异常检测器。
// 任何内部失败（项目缺失、存储错误）都返回 nil 而非错误，
// 保证批量检测任务不会因单个检测器失败而中断。
type Detectors struct {
	requestRepo repository.RequestRepository

	windowSize     int
	minSamples     int
	sigmaThreshold float64
	errorRateDelta float64
}

// NewDetectors 创建检测器集合
func NewDetectors(requestRepo repository.RequestRepository, cfg config.DetectionConfig) *Detectors {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.SigmaThreshold <= 0 {
		cfg.SigmaThreshold = stats.DefaultSigmaThreshold
	}
	if cfg.ErrorRateDelta <= 0 {
		cfg.ErrorRateDelta = 0.2
	}

	return &Detectors{
		requestRepo:    requestRepo,
		windowSize:     cfg.WindowSize,
		minSamples:     cfg.MinSamples,
		sigmaThreshold: cfg.SigmaThreshold,
		errorRateDelta: cfg.ErrorRateDelta,
	}
}

// DetectLatencyAnomalies 检测延迟离群
func (d *Detectors) DetectLatencyAnomalies(ctx context.Context, projectID string) *Result {
	ctx, span := tracer.Start(ctx, "Detectors.DetectLatencyAnomalies")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	records := d.window(ctx, projectID)
	if records == nil {
		return nil
	}

	values := make([]float64, len(records))
	for i, rec := range records {
		values[i] = float64(rec.LatencyMs)
	}

	return d.sigmaResult(entity.TriggerLatencyThreshold, values)
}

// DetectRiskScoreAnomalies 检测风险评分离群
func (d *Detectors) DetectRiskScoreAnomalies(ctx context.Context, projectID string) *Result {
	ctx, span := tracer.Start(ctx, "Detectors.DetectRiskScoreAnomalies")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	records := d.window(ctx, projectID)
	if records == nil {
		return nil
	}

	values := make([]float64, len(records))
	for i, rec := range records {
		values[i] = float64(rec.RiskScore)
	}

	return d.sigmaResult(entity.TriggerRiskScoreAnomaly, values)
}

// DetectErrorRateAnomalies 对比最近半窗与基线半窗的错误率
func (d *Detectors) DetectErrorRateAnomalies(ctx context.Context, projectID string) *Result {
	ctx, span := tracer.Start(ctx, "Detectors.DetectErrorRateAnomalies")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID))

	records := d.window(ctx, projectID)
	if records == nil {
		return nil
	}

	// records 按时间倒序，前半段为最近批次，后半段为基线
	mid := len(records) / 2
	if mid == 0 || len(records)-mid < 1 {
		return nil
	}
	recent, baseline := records[:mid], records[mid:]

	recentRate := errorRate(recent)
	baselineRate := errorRate(baseline)
	delta := recentRate - baselineRate

	if delta <= d.errorRateDelta {
		return nil
	}

	errorCount := 0
	for _, rec := range recent {
		if rec.HasError() {
			errorCount++
		}
	}

	return &Result{
		Triggered:    true,
		TriggerType:  entity.TriggerErrorRateAnomaly,
		AnomalyCount: errorCount,
		Metadata: map[string]any{
			"recent_rate":   recentRate,
			"baseline_rate": baselineRate,
			"delta":         delta,
			"threshold":     d.errorRateDelta,
			"recent_size":   len(recent),
			"baseline_size": len(baseline),
		},
	}
}

// window 拉取项目最近的请求窗口；样本不足或存储失败时返回 nil
func (d *Detectors) window(ctx context.Context, projectID string) []*entity.RequestRecord {
	records, err := d.requestRepo.Recent(ctx, projectID, d.windowSize)
	if err != nil {
		logger.Warn(ctx, "detector failed to fetch request window",
			"project_id", projectID,
			"error", err.Error(),
		)
		return nil
	}
	if len(records) < d.minSamples {
		return nil
	}
	return records
}

// sigmaResult 对数值序列做西格玛离群检测并组装结果
func (d *Detectors) sigmaResult(triggerType entity.TriggerType, values []float64) *Result {
	outliers := stats.DetectSigmaOutliers(values, d.sigmaThreshold)
	if len(outliers) == 0 {
		return nil
	}

	summary := stats.Calculate(values)
	maxOutlier := values[outliers[0]]
	for _, idx := range outliers {
		if values[idx] > maxOutlier {
			maxOutlier = values[idx]
		}
	}

	return &Result{
		Triggered:    true,
		TriggerType:  triggerType,
		AnomalyCount: len(outliers),
		Metadata: map[string]any{
			"anomaly_count": len(outliers),
			"mean":          summary.Mean,
			"std_dev":       summary.StdDev,
			"threshold":     d.sigmaThreshold,
			"max_value":     maxOutlier,
			"sample_size":   len(values),
		},
	}
}

func errorRate(records []*entity.RequestRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	errors := 0
	for _, rec := range records {
		if rec.HasError() {
			errors++
		}
	}
	return float64(errors) / float64(len(records))
}
