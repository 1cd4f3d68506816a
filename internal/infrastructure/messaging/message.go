// Package messaging 提供消息队列实现
package messaging

import (
	"encoding/json"
	"time"
)

// Message 消息结构
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	ProjectID string            `json:"project_id"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage 创建新消息
func NewMessage(id, msgType, projectID string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Message{
		ID:        id,
		Type:      msgType,
		ProjectID: projectID,
		Payload:   payloadBytes,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}, nil
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

// GetMetadata 获取元数据
func (m *Message) GetMetadata(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}

// UnmarshalPayload 解析消息载荷
func (m *Message) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// Stream 流定义
type Stream string

const (
	// StreamIncidentEvents 事件生命周期通知流（创建/解决）
	StreamIncidentEvents Stream = "stream:incident:events"
	// StreamDetectionRuns 检测触发流（管理端手动触发）
	StreamDetectionRuns Stream = "stream:detection:runs"
)

// DLQStream 获取对应的死信队列流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组定义
type ConsumerGroup string

const (
	ConsumerGroupDetector ConsumerGroup = "cg-detector"
)

// 消息类型
const (
	MsgTypeIncidentCreated  = "incident_created"
	MsgTypeIncidentResolved = "incident_resolved"
	MsgTypeDetectionRun     = "detection_run"
)

// IncidentEventMessage 事件通知载荷
type IncidentEventMessage struct {
	IncidentID  string `json:"incident_id"`
	ProjectID   string `json:"project_id"`
	TriggerType string `json:"trigger_type"`
	Severity    string `json:"severity"`
	Status      string `json:"status"`
}

// DetectionRunMessage 检测触发载荷。
// ProjectID 为空表示全量检测。
type DetectionRunMessage struct {
	ProjectID   string `json:"project_id,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}
