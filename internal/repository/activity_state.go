package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-collar/internal/accumulator"

	"go.uber.org/zap"
)

var (
	// ErrStateNotFound 没有持久化的当日状态
	ErrStateNotFound = errors.New("activity state not found")
	// ErrStateCorrupted 持久化的状态无法解析
	ErrStateCorrupted = errors.New("activity state corrupted")
)

// ActivityStateRepository 当日累计状态（AccumulatorState + 步数）的 Redis 存储，
// 用于进程重启后的同日延续
type ActivityStateRepository struct {
	cache  StateCache
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewActivityStateRepository 创建状态仓库
func NewActivityStateRepository(cache StateCache, prefix string, ttl time.Duration, logger *zap.Logger) *ActivityStateRepository {
	return &ActivityStateRepository{
		cache:  cache,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

// Key 构建状态键
func (r *ActivityStateRepository) Key(deviceID string) string {
	return r.prefix + deviceID
}

// Load 读取设备的当日状态
func (r *ActivityStateRepository) Load(ctx context.Context, deviceID string) (accumulator.Day, error) {
	key := r.Key(deviceID)
	payload, err := r.cache.Load(ctx, key)
	if err != nil {
		if errors.Is(err, errNotCached) {
			return accumulator.Day{}, ErrStateNotFound
		}
		return accumulator.Day{}, fmt.Errorf("failed to get activity state: %w", err)
	}

	var day accumulator.Day
	if err := json.Unmarshal(payload, &day); err != nil {
		return accumulator.Day{}, fmt.Errorf("%w: %v", ErrStateCorrupted, err)
	}
	if _, err := time.Parse(accumulator.DayKeyLayout, day.Key); err != nil {
		return accumulator.Day{}, fmt.Errorf("%w: invalid day key %q", ErrStateCorrupted, day.Key)
	}
	return day, nil
}

// LoadOrEmpty 读取状态；不存在或已损坏时返回空状态（Key 为空），由调用方按当日开始
func (r *ActivityStateRepository) LoadOrEmpty(ctx context.Context, deviceID string) (accumulator.Day, error) {
	day, err := r.Load(ctx, deviceID)
	switch {
	case err == nil:
		return day, nil
	case errors.Is(err, ErrStateNotFound):
		return accumulator.Day{}, nil
	case errors.Is(err, ErrStateCorrupted):
		r.logger.Warn("Discarding corrupted activity state",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		if delErr := r.cache.Drop(ctx, r.Key(deviceID)); delErr != nil {
			r.logger.Warn("Failed to delete corrupted activity state", zap.Error(delErr))
		}
		return accumulator.Day{}, nil
	default:
		return accumulator.Day{}, err
	}
}

// Save 保存当日状态（带 TTL）
func (r *ActivityStateRepository) Save(ctx context.Context, deviceID string, day accumulator.Day) error {
	data, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("failed to marshal activity state: %w", err)
	}
	if err := r.cache.Store(ctx, r.Key(deviceID), data, r.ttl); err != nil {
		return fmt.Errorf("failed to set activity state: %w", err)
	}
	return nil
}
