package redis

import (
	"context"
	"fmt"
	"time"

	"wisefido-collar/internal/common/config"

	"github.com/go-redis/redis/v8"
)

const (
	defaultDialTimeout = 3 * time.Second
	defaultPoolSize    = 4
	maxPingBackoff     = 30 * time.Second
)

// NewRedisClient 创建Redis客户端。网关只有一个写入方，连接池保持很小。
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}
	pool := cfg.PoolSize
	if pool <= 0 {
		pool = defaultPoolSize
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dial,
		ReadTimeout:  dial,
		WriteTimeout: dial,
		PoolSize:     pool,
	})
}

// Ping 测试Redis连接；attempts > 1 时按指数退避（1s 起，最长 30s）重试，
// 用于设备启动时 Redis 晚于网关就绪的情况
func Ping(ctx context.Context, client *redis.Client, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := time.Second
	var err error
	for i := 0; i < attempts; i++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxPingBackoff {
			backoff = maxPingBackoff
		}
	}
	return fmt.Errorf("redis ping failed after %d attempts: %w", attempts, err)
}

// Close 关闭Redis连接
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
