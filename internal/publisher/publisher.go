package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wisefido-collar/internal/models"

	"go.uber.org/zap"
)

// Sink 事件输出端
type Sink interface {
	Name() string
	// Accepts 是否接收某类事件
	Accepts(kind models.EventKind) bool
	Publish(ctx context.Context, kind models.EventKind, deviceID string, payload []byte) error
}

// Publisher 把事件序列化一次后分发到所有输出端。单个输出端失败不影响其他输出端。
type Publisher struct {
	sinks  []Sink
	logger *zap.Logger
}

// New 创建发布器
func New(logger *zap.Logger, sinks ...Sink) *Publisher {
	return &Publisher{sinks: sinks, logger: logger}
}

// Add 追加输出端（启动阶段调用）
func (p *Publisher) Add(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Sinks 已注册的输出端名称
func (p *Publisher) Sinks() []string {
	names := make([]string, 0, len(p.sinks))
	for _, s := range p.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Publish 发布事件，返回所有失败输出端的合并错误
func (p *Publisher) Publish(ctx context.Context, kind models.EventKind, deviceID string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}

	var errs []error
	for _, s := range p.sinks {
		if !s.Accepts(kind) {
			continue
		}
		if err := s.Publish(ctx, kind, deviceID, payload); err != nil {
			p.logger.Warn("Failed to publish event",
				zap.String("sink", s.Name()),
				zap.String("kind", string(kind)),
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// kindSet 事件类型过滤；为空表示接收全部
type kindSet map[models.EventKind]struct{}

func newKindSet(kinds []models.EventKind) kindSet {
	if len(kinds) == 0 {
		return nil
	}
	set := make(kindSet, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

func (s kindSet) accepts(kind models.EventKind) bool {
	if s == nil {
		return true
	}
	_, ok := s[kind]
	return ok
}
