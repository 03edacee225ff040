package publisher

import (
	"context"

	"wisefido-collar/internal/common/config"
	"wisefido-collar/internal/models"

	"github.com/segmentio/kafka-go"
)

// MessageWriter kafka.Writer 的最小接口（测试中替换）
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink 写入 {topic_prefix}.{kind}，以设备 ID 作为消息键
type KafkaSink struct {
	writer      MessageWriter
	topicPrefix string
	kinds       kindSet
}

// NewKafkaWriter 按配置创建 kafka.Writer（不设置默认 Topic，由消息指定）
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaSink 创建 Kafka 输出端
func NewKafkaSink(writer MessageWriter, topicPrefix string, kinds ...models.EventKind) *KafkaSink {
	return &KafkaSink{writer: writer, topicPrefix: topicPrefix, kinds: newKindSet(kinds)}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Accepts(kind models.EventKind) bool { return s.kinds.accepts(kind) }

// Topic 事件对应的 topic
func (s *KafkaSink) Topic(kind models.EventKind) string {
	return s.topicPrefix + "." + string(kind)
}

func (s *KafkaSink) Publish(ctx context.Context, kind models.EventKind, deviceID string, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Topic: s.Topic(kind),
		Key:   []byte(deviceID),
		Value: payload,
	})
}

// Close 关闭 writer，刷新未发送的批次
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
