// Package redis 提供 Redis 缓存实现
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"llm-sentinel-api/internal/domain/entity"
)

var cacheTracer = otel.Tracer("redis.cache")

// ConstraintLoader 缓存未命中时的回源加载函数
type ConstraintLoader func(ctx context.Context, projectID string) (*entity.ProjectConstraints, error)

// ConstraintCache 项目约束快照缓存。
// 请求处理路径每次都要读约束，缓存避免热路径打到 Postgres；
// singleflight 保证同一项目的并发回源只执行一次。
type ConstraintCache struct {
	client *Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewConstraintCache 创建约束缓存
func NewConstraintCache(client *Client, ttl time.Duration) *ConstraintCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ConstraintCache{
		client: client,
		ttl:    ttl,
	}
}

func constraintKey(projectID string) string {
	return "constraints:" + projectID
}

// Get 获取项目约束；缓存未命中时通过 loader 回源并写缓存
func (c *ConstraintCache) Get(ctx context.Context, projectID string, loader ConstraintLoader) (*entity.ProjectConstraints, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.ConstraintCache.Get",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	key := constraintKey(projectID)

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		var constraints entity.ProjectConstraints
		if err := json.Unmarshal(val, &constraints); err == nil {
			return &constraints, nil
		}
		// 缓存损坏时回源
	} else if !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		// 缓存故障降级为直接回源
	}

	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, _ := c.group.Do(key, func() (any, error) {
		constraints, err := loader(ctx, projectID)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(constraints)
		if err == nil {
			c.client.rdb.Set(ctx, key, data, c.ttl)
		}
		return constraints, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load constraints: %w", err)
	}

	return result.(*entity.ProjectConstraints), nil
}

// Invalidate 使项目约束缓存失效（修复动作执行后调用）
func (c *ConstraintCache) Invalidate(ctx context.Context, projectID string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.ConstraintCache.Invalidate",
		trace.WithAttributes(attribute.String("project_id", projectID)))
	defer span.End()

	if err := c.client.rdb.Del(ctx, constraintKey(projectID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate constraints cache: %w", err)
	}
	return nil
}
