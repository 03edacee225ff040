package publisher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"wisefido-collar/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull 发布队列已满，事件被丢弃
	ErrQueueFull = errors.New("publisher: queue full")
	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = errors.New("publisher: queue closed")
)

// Target 队列的下游（通常是 *Publisher）
type Target interface {
	Publish(ctx context.Context, kind models.EventKind, deviceID string, event interface{}) error
}

type queuedEvent struct {
	kind     models.EventKind
	deviceID string
	event    interface{}
}

// Queue 在后台 goroutine 中把事件交给下游，调用方只做一次非阻塞入队。
// 输出端变慢时事件在队列中堆积，队列满后新事件被丢弃并计数。
type Queue struct {
	target  Target
	items   chan queuedEvent
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped int64
}

// NewQueue 创建发布队列。timeout 限制单个事件的下游发布时间。
func NewQueue(target Target, size int, timeout time.Duration, logger *zap.Logger) *Queue {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Queue{
		target:  target,
		items:   make(chan queuedEvent, size),
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Publish 入队，不等待下游
func (q *Queue) Publish(_ context.Context, kind models.EventKind, deviceID string, event interface{}) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.items <- queuedEvent{kind: kind, deviceID: deviceID, event: event}:
		return nil
	default:
		atomic.AddInt64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Dropped 因队列满被丢弃的事件数
func (q *Queue) Dropped() int64 {
	return atomic.LoadInt64(&q.dropped)
}

// Pending 队列中等待发布的事件数
func (q *Queue) Pending() int {
	return len(q.items)
}

// Run 发布队列中的事件，直到 Close 后队列排空。
// 关闭阶段的事件（例如最后的每日汇总）也会发出，因此每个事件使用独立的超时上下文。
func (q *Queue) Run() {
	defer close(q.done)
	for it := range q.items {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.target.Publish(ctx, it.kind, it.deviceID, it.event); err != nil {
			q.logger.Warn("Queued event publish failed",
				zap.String("kind", string(it.kind)),
				zap.String("device_id", it.deviceID),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close 停止接收新事件并等待 Run 排空队列
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
