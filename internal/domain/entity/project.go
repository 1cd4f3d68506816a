// Package entity 定义领域实体
package entity

import (
	"time"
)

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusSuspended ProjectStatus = "suspended"
	ProjectStatusArchived  ProjectStatus = "archived"
)

// Project 接入项目实体。
// 项目的创建与管理属于外部协作方，核心层只读取项目目录。
type Project struct {
	ID           string        `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name         string        `json:"name" gorm:"type:varchar(255);not null"`
	Description  string        `json:"description,omitempty" gorm:"type:text"`
	DefaultModel string        `json:"default_model,omitempty" gorm:"type:varchar(64)"`
	Status       ProjectStatus `json:"status" gorm:"type:varchar(50);default:'active'"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// IsActive 检查项目是否处于活跃状态
func (p *Project) IsActive() bool {
	return p.Status == ProjectStatusActive
}
