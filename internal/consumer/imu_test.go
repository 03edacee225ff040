package consumer

import (
	"testing"

	"wisefido-collar/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIMU(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    int
		wantErr bool
	}{
		{name: "single object", payload: `{"ax":0.1,"ay":0,"az":1.02}`, want: 1},
		{name: "array with time", payload: `[{"ax":0,"ay":0,"az":1,"t_ms":100},{"ax":0,"ay":0,"az":1,"t_ms":200}]`, want: 2},
		{name: "empty", payload: "  ", wantErr: true},
		{name: "missing axis", payload: `{"ax":0.1,"ay":0}`, wantErr: true},
		{name: "not json", payload: `ax=1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, err := ParseIMU([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, samples, tt.want)
		})
	}
}

func TestParseIMU_KeepsSampleTime(t *testing.T) {
	samples, err := ParseIMU([]byte(`[{"ax":0.5,"ay":-0.5,"az":1,"t_ms":1500}]`))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.NotNil(t, samples[0].TimeMs)
	assert.Equal(t, uint32(1500), *samples[0].TimeMs)
	assert.Equal(t, -0.5, samples[0].Ay)
}

func TestDeviceFromTopic(t *testing.T) {
	assert.Equal(t, "collar-1", DeviceFromTopic("collar/collar-1/imu"))
	assert.Equal(t, "collar-1", DeviceFromTopic("site/a/collar-1/imu"))
	assert.Equal(t, "", DeviceFromTopic("imu"))
}

func TestHandleIMU(t *testing.T) {
	h := newHarness(config.LabelSourceHost)

	require.NoError(t, h.tracker.HandleIMU("collar/collar-1/imu", []byte(`{"ax":0,"ay":0,"az":1}`)))
	item := <-h.tracker.in
	batch, ok := item.(sampleBatch)
	require.True(t, ok)
	assert.Equal(t, "mqtt", batch.source)
	assert.Len(t, batch.samples, 1)

	require.NoError(t, h.tracker.HandleIMU("collar/other/imu", []byte(`{"ax":0,"ay":0,"az":1}`)))
	require.NoError(t, h.tracker.HandleIMU("collar/collar-1/imu", []byte(`garbage`)))
	assert.Empty(t, h.tracker.in)
	assert.Equal(t, int64(2), h.tracker.Metrics().GetSnapshot().SamplesSkipped)
}
