package publisher

import (
	"context"
	"time"

	rediscommon "wisefido-collar/internal/common/redis"
	"wisefido-collar/internal/models"

	"github.com/go-redis/redis/v8"
)

// StreamSink 写入 Redis Streams：{prefix}{kind}:stream
type StreamSink struct {
	client *redis.Client
	prefix string
	maxLen int64
	kinds  kindSet
	now    func() time.Time
}

// NewStreamSink 创建 Redis Streams 输出端
func NewStreamSink(client *redis.Client, prefix string, maxLen int64, kinds ...models.EventKind) *StreamSink {
	return &StreamSink{
		client: client,
		prefix: prefix,
		maxLen: maxLen,
		kinds:  newKindSet(kinds),
		now:    time.Now,
	}
}

func (s *StreamSink) Name() string { return "redis_stream" }

func (s *StreamSink) Accepts(kind models.EventKind) bool { return s.kinds.accepts(kind) }

// Stream 事件对应的 stream 名称
func (s *StreamSink) Stream(kind models.EventKind) string {
	return s.prefix + string(kind) + ":stream"
}

func (s *StreamSink) Publish(ctx context.Context, kind models.EventKind, deviceID string, payload []byte) error {
	_, err := rediscommon.PublishToStream(ctx, s.client, s.Stream(kind), map[string]interface{}{
		"device_id": deviceID,
		"kind":      string(kind),
		"data":      payload,
		"ts":        s.now().UnixMilli(),
	}, s.maxLen)
	return err
}
