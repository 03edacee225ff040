package inference

import (
	"math"
	"testing"

	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/models"

	"github.com/stretchr/testify/assert"
)

func legacyProfiles() calibration.Profiles {
	rest, walk, run := calibration.LegacyProfiles(0.02, 0.15, 0.40)
	return calibration.Profiles{Rest: rest, Walk: walk, Run: run, Calibrated: true}
}

func TestClassify_Calibrated(t *testing.T) {
	p := legacyProfiles()

	tests := []struct {
		name     string
		features models.Features
		want     models.Label
	}{
		{
			name:     "still",
			features: models.Features{Mean: 0.02, Std: 0.005, Variance: 0.000025, RMS: 0.02, Peak: 0.03, Energy: 0.0004},
			want:     models.LabelRest,
		},
		{
			name:     "erratic high peaks",
			features: models.Features{Mean: 0.4, Std: 0.245, Variance: 0.06, RMS: 0.55, Peak: 1.5, Energy: 0.3},
			want:     models.LabelPlay,
		},
		{
			name:     "sustained high energy",
			features: models.Features{Mean: 0.4, Std: 0.14, Variance: 0.02, RMS: 0.45, Peak: 0.8, Energy: 0.2},
			want:     models.LabelRun,
		},
		{
			name:     "moderate motion",
			features: models.Features{Mean: 0.15, Std: 0.05, Variance: 0.0025, RMS: 0.17, Peak: 0.3, Energy: 0.03},
			want:     models.LabelWalk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.features, p, 1.0))
		})
	}
}

func TestClassify_PlayCheckedBeforeRun(t *testing.T) {
	p := legacyProfiles()
	// 同时满足 PLAY 与 RUN 条件时取 PLAY
	f := models.Features{Std: 0.3, Variance: 0.09, RMS: 0.6, Peak: 1.4, Energy: 0.36}
	assert.Equal(t, models.LabelPlay, Classify(f, p, 1.0))
}

func TestClassify_SensitivityLowersExceedThresholds(t *testing.T) {
	p := legacyProfiles()
	f := models.Features{Mean: 0.2, Std: 0.05, Variance: 0.0025, RMS: 0.25, Peak: 0.3, Energy: 0.06}

	assert.Equal(t, models.LabelWalk, Classify(f, p, 1.0))
	assert.Equal(t, models.LabelRun, Classify(f, p, 2.0))
}

func TestClassify_UncalibratedFallback(t *testing.T) {
	var p calibration.Profiles

	assert.Equal(t, models.LabelRest, Classify(models.Features{Mean: 0.05}, p, 1.0))
	assert.Equal(t, models.LabelWalk, Classify(models.Features{Mean: 0.1}, p, 1.0))
	assert.Equal(t, models.LabelRun, Classify(models.Features{Mean: 0.3}, p, 1.0))
	assert.Equal(t, models.LabelPlay, Classify(models.Features{Mean: 0.6}, p, 1.0))

	assert.Equal(t, models.LabelPlay, Classify(models.Features{Mean: 0.3}, p, 2.0))
	assert.Equal(t, models.LabelWalk, Classify(models.Features{Mean: 0.05}, p, 2.0))

	// 非法灵敏度按 1 处理
	assert.Equal(t, models.LabelRun, Classify(models.Features{Mean: 0.3}, p, 0))
}

func TestClassify_NonFiniteSensitivityFallsBackToOne(t *testing.T) {
	calibrated := legacyProfiles()
	walking := models.Features{Mean: 0.2, Std: 0.05, Variance: 0.0025, RMS: 0.25, Peak: 0.3, Energy: 0.06}
	var uncalibrated calibration.Profiles

	for _, sf := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.Equal(t, models.LabelWalk, Classify(walking, calibrated, sf), "sensitivity %v", sf)
		assert.Equal(t, models.LabelRun, Classify(models.Features{Mean: 0.3}, uncalibrated, sf), "sensitivity %v", sf)
	}
}
