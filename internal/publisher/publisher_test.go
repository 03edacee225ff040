package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"wisefido-collar/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	name  string
	kinds kindSet
	err   error
	got   []string
}

func (s *recordingSink) Name() string { return s.name }
func (s *recordingSink) Accepts(kind models.EventKind) bool { return s.kinds.accepts(kind) }
func (s *recordingSink) Publish(_ context.Context, kind models.EventKind, deviceID string, payload []byte) error {
	s.got = append(s.got, string(kind)+"|"+deviceID+"|"+string(payload))
	return s.err
}

func TestPublisher_FansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	broken := &recordingSink{name: "broken", err: errors.New("boom")}
	alertsOnly := &recordingSink{name: "alerts", kinds: newKindSet([]models.EventKind{models.KindAlert})}

	p := New(zap.NewNop(), ok, broken, alertsOnly)
	assert.Equal(t, []string{"ok", "broken", "alerts"}, p.Sinks())

	err := p.Publish(context.Background(), models.KindActivity, "collar-1", map[string]int{"seq": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")

	assert.Equal(t, []string{`activity|collar-1|{"seq":1}`}, ok.got)
	assert.Len(t, broken.got, 1)
	assert.Empty(t, alertsOnly.got)

	require.NoError(t, New(zap.NewNop(), ok, alertsOnly).Publish(context.Background(), models.KindAlert, "collar-1", "x"))
	assert.Len(t, alertsOnly.got, 1)
}

func TestPublisher_MarshalError(t *testing.T) {
	p := New(zap.NewNop(), &recordingSink{name: "ok"})
	err := p.Publish(context.Background(), models.KindActivity, "collar-1", make(chan int))
	assert.Error(t, err)
}

type fakeMQTT struct {
	topics   []string
	retained []bool
	qos      []byte
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.topics = append(f.topics, topic)
	f.retained = append(f.retained, retained)
	f.qos = append(f.qos, qos)
	return nil
}

func TestMQTTSink(t *testing.T) {
	client := &fakeMQTT{}
	s := NewMQTTSink(client, "collar", 1)

	require.NoError(t, s.Publish(context.Background(), models.KindActivity, "collar-1", []byte("{}")))
	require.NoError(t, s.Publish(context.Background(), models.KindSummary, "collar-1", []byte("{}")))

	assert.Equal(t, []string{"collar/collar-1/activity", "collar/collar-1/summary"}, client.topics)
	assert.Equal(t, []bool{false, true}, client.retained)
	assert.Equal(t, []byte{1, 1}, client.qos)
	assert.True(t, s.Accepts(models.KindInference))
}

func TestStreamSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewStreamSink(client, "collar:", 100)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ctx := context.Background()
	require.NoError(t, s.Publish(ctx, models.KindActivity, "collar-1", []byte(`{"seq":42}`)))

	msgs, err := client.XRange(ctx, "collar:activity:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "collar-1", msgs[0].Values["device_id"])
	assert.Equal(t, "activity", msgs[0].Values["kind"])
	assert.Equal(t, `{"seq":42}`, msgs[0].Values["data"])
	assert.Equal(t, "1700000000000", msgs[0].Values["ts"])
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSink(t *testing.T) {
	w := &fakeWriter{}
	s := NewKafkaSink(w, "collar", models.KindActivity, models.KindSummary)

	assert.False(t, s.Accepts(models.KindInference))
	require.NoError(t, s.Publish(context.Background(), models.KindSummary, "collar-1", []byte("{}")))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "collar.summary", w.msgs[0].Topic)
	assert.Equal(t, []byte("collar-1"), w.msgs[0].Key)

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestWebhookSink(t *testing.T) {
	var received webhookBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		if received.DeviceID == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewWebhookSink(srv.URL, time.Second)
	assert.True(t, s.Accepts(models.KindAlert))
	assert.False(t, s.Accepts(models.KindActivity))

	require.NoError(t, s.Publish(context.Background(), models.KindAlert, "collar-1", []byte(`{"type":"LOW_BATTERY"}`)))
	assert.Equal(t, models.KindAlert, received.Kind)
	assert.JSONEq(t, `{"type":"LOW_BATTERY"}`, string(received.Data))

	err := s.Publish(context.Background(), models.KindAlert, "bad", []byte(`{}`))
	assert.Error(t, err)
}
