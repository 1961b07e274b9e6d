package biz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docquery/internal/pkg/textutil"
)

// QueryCacheConfig 查询缓存配置。
type QueryCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// QueryCache 查询结果缓存。降级结果不会被写入缓存。
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache 创建查询缓存实例。
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "docquery:query:",
		}
	}
	return &QueryCache{
		redis:  redis,
		config: config,
	}
}

// cacheKey 基于问题生成缓存键（SHA-256 哈希）。
func (c *QueryCache) cacheKey(question string) string {
	return c.config.KeyPrefix + textutil.HashString(question)
}

// Get 从缓存获取查询结果，未命中返回 (nil, nil)。
func (c *QueryCache) Get(ctx context.Context, question string) (*QueryResult, error) {
	if !c.config.Enabled || c.redis == nil {
		return nil, fmt.Errorf("cache not enabled or redis not available")
	}

	key := c.cacheKey(question)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			logger.Debugw("cache miss", "key", key)
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", key)
		return nil, err
	}

	var result QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Warnw("failed to unmarshal cached result", "error", err.Error(), "key", key)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, key).Err()
		return nil, err
	}

	logger.Infow("cache hit", "key", key, "answer_length", len(result.Answer))
	return &result, nil
}

// Set 将查询结果写入缓存。降级结果被跳过。
func (c *QueryCache) Set(ctx context.Context, question string, result *QueryResult) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}
	if result == nil || result.Degraded {
		return nil
	}

	key := c.cacheKey(question)

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warnw("failed to marshal result for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, key, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", key)
		return err
	}

	logger.Infow("cached query result", "key", key, "ttl", c.config.TTL)
	return nil
}

// Clear 清除所有查询缓存。
func (c *QueryCache) Clear(ctx context.Context) error {
	if !c.config.Enabled || c.redis == nil {
		return nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	deletedCount := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
		} else {
			deletedCount++
		}
	}

	if err := iter.Err(); err != nil {
		logger.Warnw("error during cache scan", "error", err.Error())
		return err
	}

	logger.Infow("cleared query cache", "deleted_count", deletedCount)
	return nil
}

// GetStats 获取缓存统计信息。
func (c *QueryCache) GetStats(ctx context.Context) (map[string]any, error) {
	if !c.config.Enabled || c.redis == nil {
		return map[string]any{
			"enabled": false,
		}, nil
	}

	pattern := c.config.KeyPrefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()

	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
