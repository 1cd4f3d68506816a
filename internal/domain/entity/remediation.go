// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
	"time"
)

// ActionType 修复动作类型（封闭集合）
type ActionType string

const (
	ActionSwitchModel             ActionType = "switch_model"
	ActionIncreaseSafetyThreshold ActionType = "increase_safety_threshold"
	ActionDisableEndpoint         ActionType = "disable_endpoint"
	ActionResetSettings           ActionType = "reset_settings"
	ActionChangeSystemPrompt      ActionType = "change_system_prompt"
	ActionRateLimitUser           ActionType = "rate_limit_user"
)

// ValidActionType 判断动作类型是否合法
func ValidActionType(t ActionType) bool {
	switch t {
	case ActionSwitchModel, ActionIncreaseSafetyThreshold, ActionDisableEndpoint,
		ActionResetSettings, ActionChangeSystemPrompt, ActionRateLimitUser:
		return true
	}
	return false
}

// ActionParams 各动作类型的参数变体。
// 动作类型是带标签的联合体：每种类型携带各自的参数结构，创建时校验。
type ActionParams interface {
	// Validate 校验参数结构是否完整
	Validate() error
}

// SwitchModelParams switch_model 参数
type SwitchModelParams struct {
	NewModel string `json:"new_model"`
}

func (p SwitchModelParams) Validate() error {
	if strings.TrimSpace(p.NewModel) == "" {
		return fmt.Errorf("new_model is required")
	}
	return nil
}

// SafetyThresholdParams increase_safety_threshold 参数
type SafetyThresholdParams struct {
	NewThreshold int `json:"new_threshold"`
}

func (p SafetyThresholdParams) Validate() error {
	if p.NewThreshold < 0 || p.NewThreshold > 100 {
		return fmt.Errorf("new_threshold must be within [0,100]")
	}
	return nil
}

// DisableEndpointParams disable_endpoint 参数
type DisableEndpointParams struct {
	Endpoint string `json:"endpoint"`
	Reason   string `json:"reason,omitempty"`
}

func (p DisableEndpointParams) Validate() error {
	if strings.TrimSpace(p.Endpoint) == "" {
		return fmt.Errorf("endpoint is required")
	}
	return nil
}

// ResetSettingsParams reset_settings 参数
type ResetSettingsParams struct {
	Reason string `json:"reason"`
}

func (p ResetSettingsParams) Validate() error {
	if strings.TrimSpace(p.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

// ChangeSystemPromptParams change_system_prompt 参数
type ChangeSystemPromptParams struct {
	NewPrompt string `json:"new_prompt"`
}

func (p ChangeSystemPromptParams) Validate() error {
	if strings.TrimSpace(p.NewPrompt) == "" {
		return fmt.Errorf("new_prompt is required")
	}
	return nil
}

// RateLimitUserParams rate_limit_user 参数
type RateLimitUserParams struct {
	NewLimit int    `json:"new_limit"`
	Duration string `json:"duration,omitempty"`
}

func (p RateLimitUserParams) Validate() error {
	if p.NewLimit <= 0 {
		return fmt.Errorf("new_limit must be positive")
	}
	if p.Duration != "" {
		if _, err := time.ParseDuration(p.Duration); err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
	}
	return nil
}

// RemediationAction 事件修复动作。
// executed 只允许 false -> true 单向迁移；参数创建后不可变更。
type RemediationAction struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	IncidentID string         `json:"incident_id" gorm:"type:uuid;index;not null"`
	ActionType ActionType     `json:"action_type" gorm:"type:varchar(40);not null"`
	Parameters map[string]any `json:"parameters" gorm:"type:jsonb;serializer:json;not null"`
	Executed   bool           `json:"executed" gorm:"not null;default:false"`
	ExecutedAt *time.Time     `json:"executed_at,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (RemediationAction) TableName() string {
	return "remediation_actions"
}

// ParseActionParams 根据动作类型解析并校验参数。
// 未知类型或参数结构不符时返回错误。
func ParseActionParams(actionType ActionType, raw map[string]any) (ActionParams, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("parameters must not be empty")
	}

	var params ActionParams
	switch actionType {
	case ActionSwitchModel:
		params = SwitchModelParams{NewModel: stringParam(raw, "new_model")}
	case ActionIncreaseSafetyThreshold:
		params = SafetyThresholdParams{NewThreshold: intParam(raw, "new_threshold")}
	case ActionDisableEndpoint:
		params = DisableEndpointParams{
			Endpoint: stringParam(raw, "endpoint"),
			Reason:   stringParam(raw, "reason"),
		}
	case ActionResetSettings:
		params = ResetSettingsParams{Reason: stringParam(raw, "reason")}
	case ActionChangeSystemPrompt:
		params = ChangeSystemPromptParams{NewPrompt: stringParam(raw, "new_prompt")}
	case ActionRateLimitUser:
		params = RateLimitUserParams{
			NewLimit: intParam(raw, "new_limit"),
			Duration: stringParam(raw, "duration"),
		}
	default:
		return nil, fmt.Errorf("unknown action type: %s", actionType)
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func stringParam(raw map[string]any, key string) string {
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func intParam(raw map[string]any, key string) int {
	switch v := raw[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		// JSON 反序列化后的数字是 float64
		return int(v)
	}
	return 0
}

// NewRemediationAction 创建处于 pending 状态的修复动作
func NewRemediationAction(incidentID string, actionType ActionType, parameters map[string]any) (*RemediationAction, error) {
	if !ValidActionType(actionType) {
		return nil, fmt.Errorf("unknown action type: %s", actionType)
	}
	if _, err := ParseActionParams(actionType, parameters); err != nil {
		return nil, err
	}

	return &RemediationAction{
		IncidentID: incidentID,
		ActionType: actionType,
		Parameters: parameters,
		Executed:   false,
		Metadata:   map[string]any{},
		CreatedAt:  time.Now(),
	}, nil
}

// MarkExecuted 标记动作已执行；pending 状态才允许迁移
func (a *RemediationAction) MarkExecuted(now time.Time) bool {
	if a.Executed {
		return false
	}
	a.Executed = true
	a.ExecutedAt = &now
	return true
}
