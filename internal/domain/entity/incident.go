// Package entity 定义领域实体
package entity

import (
	"time"
)

// IncidentStatus 事件状态
type IncidentStatus string

const (
	IncidentStatusOpen     IncidentStatus = "open"
	IncidentStatusResolved IncidentStatus = "resolved"
)

// IncidentSeverity 事件严重程度
type IncidentSeverity string

const (
	SeverityLow    IncidentSeverity = "low"
	SeverityMedium IncidentSeverity = "medium"
	SeverityHigh   IncidentSeverity = "high"
)

// TriggerType 触发类型
type TriggerType string

const (
	TriggerLatencyThreshold TriggerType = "latency_threshold"
	TriggerRiskScoreAnomaly TriggerType = "risk_score_anomaly"
	TriggerErrorRateAnomaly TriggerType = "error_rate_anomaly"
)

// ValidTriggerType 判断触发类型是否合法
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerLatencyThreshold, TriggerRiskScoreAnomaly, TriggerErrorRateAnomaly:
		return true
	}
	return false
}

// Incident 项目级异常事件。
// 状态只允许 open -> resolved 单向迁移，不可重新打开。
type Incident struct {
	ID               string           `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID        string           `json:"project_id" gorm:"type:uuid;index;not null"`
	Severity         IncidentSeverity `json:"severity" gorm:"type:varchar(16);not null"`
	TriggerType      TriggerType      `json:"trigger_type" gorm:"type:varchar(32);not null"`
	Status           IncidentStatus   `json:"status" gorm:"type:varchar(16);not null;default:'open'"`
	RootCause        string           `json:"root_cause" gorm:"type:text"`
	RecommendedFix   string           `json:"recommended_fix" gorm:"type:text"`
	AffectedRequests int              `json:"affected_requests" gorm:"not null;default:0"`
	Metadata         map[string]any   `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt        time.Time        `json:"created_at" gorm:"autoCreateTime"`
	ResolvedAt       *time.Time       `json:"resolved_at,omitempty"`
}

// TableName 指定表名
func (Incident) TableName() string {
	return "incidents"
}

// NewIncident 创建处于 open 状态的事件
func NewIncident(projectID string, severity IncidentSeverity, triggerType TriggerType) *Incident {
	return &Incident{
		ProjectID:   projectID,
		Severity:    severity,
		TriggerType: triggerType,
		Status:      IncidentStatusOpen,
		Metadata:    map[string]any{},
		CreatedAt:   time.Now(),
	}
}

// IsOpen 判断事件是否仍处于 open 状态
func (i *Incident) IsOpen() bool {
	return i.Status == IncidentStatusOpen
}

// Resolve 将事件标记为已解决；open 状态才允许迁移
func (i *Incident) Resolve(now time.Time) bool {
	if !i.IsOpen() {
		return false
	}
	i.Status = IncidentStatusResolved
	i.ResolvedAt = &now
	return true
}
