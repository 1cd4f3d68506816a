// Package entity 定义领域实体
package entity

import "time"

// RequestRecord 一次 LLM 调用的遥测记录。
// 写入后不可变更；风险评分在写入时计算一次，之后不再重算。
type RequestRecord struct {
	ID         string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID  string    `json:"project_id" gorm:"type:uuid;index;not null"`
	Prompt     string    `json:"prompt" gorm:"type:text;not null"`
	Response   string    `json:"response" gorm:"type:text"`
	Model      string    `json:"model" gorm:"type:varchar(64);not null"`
	LatencyMs  int       `json:"latency_ms" gorm:"not null;default:0"`
	Tokens     int       `json:"tokens" gorm:"not null;default:0"`
	ErrorText  string    `json:"error_text,omitempty" gorm:"type:text"`
	RiskScore  int       `json:"risk_score" gorm:"not null;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 指定表名
func (RequestRecord) TableName() string {
	return "request_records"
}

// HasError 判断该调用是否出错
func (r *RequestRecord) HasError() bool {
	return r.ErrorText != ""
}
