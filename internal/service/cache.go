package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache 是旁路缓存的最小接口：读不到就回源，
// 写路径只做失效（删 key），从不原地更新。
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) bool
	SetJSON(ctx context.Context, key string, value any)
	Invalidate(ctx context.Context, keys ...string)
}

// RedisCache 用 Redis 实现 Cache。
// 缓存永远是尽力而为：任何 redis 错误只记日志，读写继续走数据库。
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

// GetJSON 读取并反序列化缓存值，命中返回 true。
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("cache get", "key", key, "error", err)
		}
		return false
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("cache decode", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON 序列化并写入缓存值，带统一 TTL。
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache encode", "key", key, "error", err)
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set", "key", key, "error", err)
	}
}

// Invalidate 删除缓存 key，由可能影响该 key 的变更调用。
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("cache invalidate", "keys", keys, "error", err)
	}
}
