package publisher

import (
	"context"
	"fmt"

	"wisefido-collar/internal/models"
)

// MQTTClient 发布所需的 MQTT 能力（common/mqtt.Client 实现）
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink 发布到 {prefix}/{device_id}/{kind}。汇总和链路状态使用保留消息。
type MQTTSink struct {
	client MQTTClient
	prefix string
	qos    byte
	kinds  kindSet
}

// NewMQTTSink 创建 MQTT 输出端
func NewMQTTSink(client MQTTClient, prefix string, qos byte, kinds ...models.EventKind) *MQTTSink {
	return &MQTTSink{client: client, prefix: prefix, qos: qos, kinds: newKindSet(kinds)}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Accepts(kind models.EventKind) bool { return s.kinds.accepts(kind) }

// Topic 事件主题
func (s *MQTTSink) Topic(kind models.EventKind, deviceID string) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, deviceID, kind)
}

func (s *MQTTSink) Publish(_ context.Context, kind models.EventKind, deviceID string, payload []byte) error {
	retained := kind == models.KindSummary || kind == models.KindLink
	return s.client.Publish(s.Topic(kind, deviceID), s.qos, retained, payload)
}
