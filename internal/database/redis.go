package database

import (
	"context"
	"fmt"
	"time"

	"classdesk/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis 建立到 Redis 的连接，用作旁路缓存后端。
// 未配置 REDIS_ADDR 时返回 nil，表示缓存被禁用。
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
