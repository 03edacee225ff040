package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord_KnownBytes(t *testing.T) {
	raw := []byte{0xE8, 0x03, 0x00, 0x00, 0x01, 0x5A, 0x64, 0x2A, 0x00, 0x00, 0x00}

	rec, err := DecodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, Record{SensorTimeMs: 1000, Label: 1, Confidence: 90, Battery: 100, Seq: 42}, rec)
}

func TestDecodeRecord_InsufficientData(t *testing.T) {
	_, err := DecodeRecord([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestAppendRecord_MatchesWireLayout(t *testing.T) {
	want := []byte{0xE8, 0x03, 0x00, 0x00, 0x01, 0x5A, 0x64, 0x2A, 0x00, 0x00, 0x00}
	got := AppendRecord(nil, Record{SensorTimeMs: 1000, Label: 1, Confidence: 90, Battery: 100, Seq: 42})
	assert.Equal(t, want, got)
}

func TestAckFrame_LittleEndian(t *testing.T) {
	frame := AckFrame{Seq: 0x01020304}
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, frame.Bytes())

	back, err := DecodeAck(frame.Bytes())
	require.NoError(t, err)
	assert.Equal(t, frame, back)

	_, err = DecodeAck([]byte{0x01})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDecodeCaptureSamples(t *testing.T) {
	payload := []byte{
		0x00, 0x40, // ax = 16384
		0x00, 0xC0, // ay = -16384
		0x01, 0x00, // az = 1
		0xFF, 0xFF, // gx = -1
		0x00, 0x00,
		0x10, 0x00, // gz = 16
	}

	samples, err := DecodeCaptureSamples(payload)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, CaptureSample{Ax: 16384, Ay: -16384, Az: 1, Gx: -1, Gy: 0, Gz: 16}, samples[0])

	ax, ay, _ := samples[0].AccelG(16384)
	assert.InDelta(t, 1.0, ax, 1e-9)
	assert.InDelta(t, -1.0, ay, 1e-9)
}

func TestDecodeCaptureSamples_Rejects(t *testing.T) {
	_, err := DecodeCaptureSamples(nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = DecodeCaptureSamples(make([]byte, 13))
	assert.ErrorIs(t, err, ErrMisalignedPayload)
}
