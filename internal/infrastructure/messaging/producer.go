// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// PublishIncidentEvent 发布事件生命周期通知
func (p *Producer) PublishIncidentEvent(ctx context.Context, msgType string, event *IncidentEventMessage) (string, error) {
	msg, err := NewMessage(event.IncidentID, msgType, event.ProjectID, event)
	if err != nil {
		return "", err
	}

	msg.SetMetadata("trigger_type", event.TriggerType)
	msg.SetMetadata("severity", event.Severity)
	return p.Publish(ctx, StreamIncidentEvents, msg)
}

// PublishDetectionRun 发布检测触发任务
func (p *Producer) PublishDetectionRun(ctx context.Context, runID string, run *DetectionRunMessage) (string, error) {
	msg, err := NewMessage(runID, MsgTypeDetectionRun, run.ProjectID, run)
	if err != nil {
		return "", err
	}

	return p.Publish(ctx, StreamDetectionRuns, msg)
}
