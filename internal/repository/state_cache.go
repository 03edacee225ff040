package repository

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// errNotCached 键不存在或已过期
var errNotCached = errors.New("repository: not cached")

// StateCache 当日状态快照的缓存后端，值是序列化好的 JSON
type StateCache interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Drop(ctx context.Context, key string) error
}

// RedisStateCache 基于 go-redis；单机和集群客户端都可用
type RedisStateCache struct {
	client redis.UniversalClient
}

func NewRedisStateCache(client redis.UniversalClient) *RedisStateCache {
	return &RedisStateCache{client: client}
}

func (c *RedisStateCache) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errNotCached
	}
	return payload, err
}

// Store ttl 为 0 时不过期
func (c *RedisStateCache) Store(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisStateCache) Drop(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
