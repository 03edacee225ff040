package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-collar/internal/models"

	"github.com/go-resty/resty/v2"
)

// webhookBody 回调请求体
type webhookBody struct {
	Kind     models.EventKind `json:"kind"`
	DeviceID string           `json:"device_id"`
	Data     json.RawMessage  `json:"data"`
}

// WebhookSink 把告警和每日汇总 POST 到外部 URL
type WebhookSink struct {
	client *resty.Client
	url    string
	kinds  kindSet
}

// NewWebhookSink 创建 webhook 输出端；默认只发送告警和汇总
func NewWebhookSink(url string, timeout time.Duration, kinds ...models.EventKind) *WebhookSink {
	if len(kinds) == 0 {
		kinds = []models.EventKind{models.KindAlert, models.KindSummary}
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &WebhookSink{client: client, url: url, kinds: newKindSet(kinds)}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Accepts(kind models.EventKind) bool { return s.kinds.accepts(kind) }

func (s *WebhookSink) Publish(ctx context.Context, kind models.EventKind, deviceID string, payload []byte) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(webhookBody{Kind: kind, DeviceID: deviceID, Data: payload}).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
