// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/lib/pq"
)

// ProjectConstraints 项目级约束，已执行修复动作的持久化副作用。
// 请求处理路径在放行前必须读取并遵守这些约束。
type ProjectConstraints struct {
	ProjectID         string         `json:"project_id" gorm:"type:uuid;primaryKey"`
	RateLimitPerMin   *int           `json:"rate_limit_per_min,omitempty"`
	ForcedModel       string         `json:"forced_model,omitempty" gorm:"type:varchar(64)"`
	SafetyThreshold   *int           `json:"safety_threshold,omitempty"`
	SystemPrompt      string         `json:"system_prompt,omitempty" gorm:"type:text"`
	DisabledEndpoints pq.StringArray `json:"disabled_endpoints,omitempty" gorm:"type:text[]"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (ProjectConstraints) TableName() string {
	return "project_constraints"
}

// ConstraintKind 约束种类
type ConstraintKind string

const (
	ConstraintRateLimit       ConstraintKind = "rate_limit"
	ConstraintForcedModel     ConstraintKind = "forced_model"
	ConstraintSafetyThreshold ConstraintKind = "safety_threshold"
	ConstraintSystemPrompt    ConstraintKind = "system_prompt"
	ConstraintDisableEndpoint ConstraintKind = "disable_endpoint"
)

// IsExpired 判断约束是否已过期
func (c *ProjectConstraints) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// IsEndpointDisabled 判断指定端点是否被禁用
func (c *ProjectConstraints) IsEndpointDisabled(endpoint string) bool {
	for _, e := range c.DisabledEndpoints {
		if e == endpoint || e == "*" {
			return true
		}
	}
	return false
}

// IsEmpty 判断是否不存在任何生效约束
func (c *ProjectConstraints) IsEmpty() bool {
	return c.RateLimitPerMin == nil &&
		c.ForcedModel == "" &&
		c.SafetyThreshold == nil &&
		c.SystemPrompt == "" &&
		len(c.DisabledEndpoints) == 0
}
