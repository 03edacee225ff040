package consumer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// imuMessage MQTT 原始加速度消息中的一个样本
type imuMessage struct {
	Ax  *float64 `json:"ax"`
	Ay  *float64 `json:"ay"`
	Az  *float64 `json:"az"`
	TMs *uint32  `json:"t_ms,omitempty"`
}

// HandleIMU 处理 collar/{device}/imu 主题的原始加速度消息（单个对象或数组）。
// 非本设备或格式错误的消息记录后跳过，不返回错误以免阻塞订阅。
func (t *Tracker) HandleIMU(topic string, payload []byte) error {
	deviceID := DeviceFromTopic(topic)
	if deviceID != "" && deviceID != t.cfg.DeviceID {
		t.metrics.IncrementSkipped()
		t.logger.Debug("Skipping IMU message for other device",
			zap.String("topic", topic),
			zap.String("device_id", deviceID),
		)
		return nil
	}

	samples, err := ParseIMU(payload)
	if err != nil {
		t.metrics.IncrementSkipped()
		t.logger.Warn("Invalid IMU message",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}

	t.OnSamples("mqtt", samples)
	return nil
}

// DeviceFromTopic 从 prefix/{device}/imu 中取出设备 ID
func DeviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

// ParseIMU 解析样本；ax/ay/az 缺一不可
func ParseIMU(payload []byte) ([]Sample, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var msgs []imuMessage
	if payload[0] == '[' {
		if err := json.Unmarshal(payload, &msgs); err != nil {
			return nil, fmt.Errorf("failed to decode IMU array: %w", err)
		}
	} else {
		var m imuMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("failed to decode IMU sample: %w", err)
		}
		msgs = []imuMessage{m}
	}

	samples := make([]Sample, 0, len(msgs))
	for i, m := range msgs {
		if m.Ax == nil || m.Ay == nil || m.Az == nil {
			return nil, fmt.Errorf("sample %d: missing axis", i)
		}
		samples = append(samples, Sample{Ax: *m.Ax, Ay: *m.Ay, Az: *m.Az, TimeMs: m.TMs})
	}
	return samples, nil
}
