package inference

import (
	"math"
	"testing"

	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_WaitsForFullWindow(t *testing.T) {
	p := NewPipeline(DefaultConfig(), calibration.NewStore())

	for i := 0; i < 9; i++ {
		res := p.Process(0, 0, 1)
		assert.False(t, res.Ready)
		assert.Equal(t, models.LabelRest, res.Label)
	}

	res := p.Process(0, 0, 1)
	assert.True(t, res.Ready)
	assert.Equal(t, models.LabelRest, res.Raw)
	assert.Equal(t, models.Features{}, res.Features)
	assert.Nil(t, res.Distances)
}

func TestPipeline_VigorousMotionBecomesPlay(t *testing.T) {
	p := NewPipeline(DefaultConfig(), calibration.NewStore())

	var last Result
	changes := 0
	for i := 0; i < 60; i++ {
		last = p.Process(1.6, 0, 1)
		if last.Changed {
			changes++
		}
	}
	assert.Equal(t, models.LabelPlay, last.Label)
	assert.Equal(t, models.LabelPlay, p.Current())
	assert.Greater(t, p.LastFeatures().Mean, 0.5)
	assert.GreaterOrEqual(t, changes, 1)
}

func TestPipeline_ReportsDistancesWhenCalibrated(t *testing.T) {
	store := calibration.NewStore()
	store.ApplyLegacy(0.02, 0.15, 0.40)
	p := NewPipeline(DefaultConfig(), store)

	var res Result
	for i := 0; i < 10; i++ {
		res = p.Process(0, 0, 1)
	}
	require.True(t, res.Ready)
	assert.Equal(t, models.LabelRest, res.Raw)
	require.Len(t, res.Distances, 3)
	assert.Less(t, res.Distances["rest"], res.Distances["run"])
}

func TestPipeline_CalibrationRecording(t *testing.T) {
	p := NewPipeline(DefaultConfig(), calibration.NewStore())

	_, _, err := p.StopCalibration()
	assert.ErrorIs(t, err, ErrNotRecording)

	assert.ErrorIs(t, p.StartCalibration(models.LabelPlay), calibration.ErrInvalidActivity)

	require.NoError(t, p.StartCalibration(models.LabelWalk))
	assert.ErrorIs(t, p.StartCalibration(models.LabelRun), ErrAlreadyRecording)

	for i := 0; i < 20; i++ {
		res := p.Process(0.5, 0, 1)
		assert.True(t, res.Calibrating)
		assert.False(t, res.Ready)
		assert.Equal(t, models.LabelWalk, res.Label)
	}
	rec, ok := p.Recording()
	require.True(t, ok)
	assert.Equal(t, 20, rec.Samples)

	activity, features, err := p.StopCalibration()
	require.NoError(t, err)
	assert.Equal(t, models.LabelWalk, activity)
	assert.Greater(t, features.Mean, 0.0)
	assert.Greater(t, features.Peak, features.Mean)

	_, ok = p.Recording()
	assert.False(t, ok)

	require.NoError(t, p.StartCalibration(models.LabelRest))
	_, _, err = p.StopCalibration()
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestPipeline_Sensitivity(t *testing.T) {
	p := NewPipeline(DefaultConfig(), calibration.NewStore())
	assert.Equal(t, 1.0, p.Sensitivity())

	require.NoError(t, p.SetSensitivity(1.5))
	assert.Equal(t, 1.5, p.Sensitivity())
	assert.Error(t, p.SetSensitivity(0))

	for _, sf := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -2} {
		assert.Error(t, p.SetSensitivity(sf), "sensitivity %v", sf)
	}
	assert.Equal(t, 1.5, p.Sensitivity())

	cfg := DefaultConfig()
	cfg.Sensitivity = math.NaN()
	assert.Equal(t, 1.0, NewPipeline(cfg, calibration.NewStore()).Sensitivity())
}
