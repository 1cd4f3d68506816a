// Package messaging 提供消息队列实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"llm-sentinel-api/pkg/logger"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, msg *Message) error

// Consumer 消息消费者
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	retryLimit    int

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Stream       Stream
	Group        ConsumerGroup
	ConsumerName string
	BlockTimeout time.Duration
	// ClaimInterval 认领周期：pending 超过该时长的消息会被重新投递
	ClaimInterval time.Duration
	RetryLimit    int
}

// NewConsumer 创建消息消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		retryLimit:    cfg.RetryLimit,
		handlers:      make(map[string]MessageHandler),
		stopCh:        make(chan struct{}),
	}
}

// RegisterHandler 注册消息处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 启动消费者
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer already running")
	}
	c.running = true
	c.mu.Unlock()

	// 确保消费者组存在
	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	go c.run(ctx)
	return nil
}

// Stop 停止消费者
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stopCh)
		c.running = false
	}
}

// run 消费循环
func (c *Consumer) run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.Info("consumer started",
		"stream", string(c.stream),
		"group", string(c.group),
		"consumer", c.consumerName,
	)

	lastClaim := time.Now()

	for {
		select {
		case <-c.stopCh:
			log.Info("consumer stopped", "stream", string(c.stream))
			return
		case <-ctx.Done():
			log.Info("consumer context cancelled", "stream", string(c.stream))
			return
		default:
		}

		if time.Since(lastClaim) >= c.claimInterval {
			c.redeliverPending(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    10,
			Block:    c.blockTimeout,
		}).Result()

		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.Error("failed to read from stream", "stream", string(c.stream), "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, xmsg := range stream.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

// processMessage 处理单条消息
func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	log := logger.FromContext(ctx)

	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		log.Warn("message missing data field, acking", "stream_msg_id", xmsg.ID)
		c.ack(ctx, xmsg.ID)
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		log.Warn("failed to unmarshal message, moving to dlq", "stream_msg_id", xmsg.ID, "error", err)
		c.moveToDLQ(ctx, xmsg, err)
		c.ack(ctx, xmsg.ID)
		return
	}

	msgCtx := logger.WithContext(ctx, logger.ProjectIDKey, msg.ProjectID)

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()

	if !ok {
		log.Warn("no handler for message type, acking", "type", msg.Type, "message_id", msg.ID)
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(msgCtx, &msg); err != nil {
		log.Error("message handler failed",
			"type", msg.Type,
			"message_id", msg.ID,
			"error", err,
		)
		c.handleFailure(ctx, xmsg, err)
		return
	}

	c.ack(ctx, xmsg.ID)
}

// handleFailure 处理失败消息。
// 重试次数超限时移入死信队列并确认，否则留在 pending 列表，
// 由 redeliverPending 在下一个认领周期重新投递。
func (c *Consumer) handleFailure(ctx context.Context, xmsg redis.XMessage, handlerErr error) {
	log := logger.FromContext(ctx)

	retries := c.getRetryCount(ctx, xmsg.ID)
	if retries >= int64(c.retryLimit) {
		log.Warn("retry limit exceeded, moving to dlq",
			"stream_msg_id", xmsg.ID,
			"retries", retries,
		)
		c.moveToDLQ(ctx, xmsg, handlerErr)
		c.ack(ctx, xmsg.ID)
		return
	}

	log.Info("message left pending for redelivery",
		"stream_msg_id", xmsg.ID,
		"retries", retries,
	)
}

// redeliverPending 重新投递 pending 中闲置超过认领周期的消息。
// XAutoClaim 认领会递增投递计数，反复失败的消息最终在此处达到重试上限并进入死信队列。
func (c *Consumer) redeliverPending(ctx context.Context) {
	log := logger.FromContext(ctx)

	start := "0-0"
	for {
		claimed, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   string(c.stream),
			Group:    string(c.group),
			Consumer: c.consumerName,
			MinIdle:  c.claimInterval,
			Start:    start,
			Count:    20,
		}).Result()
		if err != nil {
			if err != redis.Nil {
				log.Error("failed to claim pending messages", "stream", string(c.stream), "error", err)
			}
			return
		}

		for _, xmsg := range claimed {
			retries := c.getRetryCount(ctx, xmsg.ID)
			if retries >= int64(c.retryLimit) {
				log.Warn("retry limit exceeded, moving to dlq",
					"stream_msg_id", xmsg.ID,
					"retries", retries,
				)
				c.moveToDLQ(ctx, xmsg, fmt.Errorf("retry limit exceeded after %d deliveries", retries))
				c.ack(ctx, xmsg.ID)
				continue
			}
			c.processMessage(ctx, xmsg)
		}

		if len(claimed) == 0 || next == "0-0" {
			return
		}
		start = next
	}
}

// getRetryCount 获取消息的投递次数
func (c *Consumer) getRetryCount(ctx context.Context, msgID string) int64 {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  msgID,
		End:    msgID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return pending[0].RetryCount
}

// moveToDLQ 将消息移入死信队列
func (c *Consumer) moveToDLQ(ctx context.Context, xmsg redis.XMessage, cause error) {
	log := logger.FromContext(ctx)

	values := map[string]interface{}{
		"original_stream": string(c.stream),
		"original_id":     xmsg.ID,
		"failed_at":       time.Now().Format(time.RFC3339),
	}
	if cause != nil {
		values["error"] = cause.Error()
	}
	if data, ok := xmsg.Values["data"]; ok {
		values["data"] = data
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream.DLQStream(),
		Values: values,
	}).Err(); err != nil {
		log.Error("failed to move message to dlq", "stream_msg_id", xmsg.ID, "error", err)
	}
}

// ack 确认消息
func (c *Consumer) ack(ctx context.Context, msgID string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), msgID).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "stream_msg_id", msgID, "error", err)
	}
}
