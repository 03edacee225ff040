package calibration

import (
	"testing"

	"wisefido-collar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegacyProfiles(t *testing.T) {
	rest, walk, run := LegacyProfiles(0.02, 0.15, 0.40)

	assert.InDelta(t, 0.006, rest.Std, 1e-9)
	assert.InDelta(t, 0.006*0.006, rest.Variance, 1e-12)
	assert.InDelta(t, 0.022, rest.RMS, 1e-9)
	assert.InDelta(t, 0.03, rest.Peak, 1e-9)
	assert.InDelta(t, 0.0004, rest.Energy, 1e-12)

	assert.InDelta(t, 0.06, walk.Std, 1e-9)
	assert.InDelta(t, 0.30, walk.Peak, 1e-9)

	assert.InDelta(t, 0.20, run.Std, 1e-9)
	assert.InDelta(t, 1.00, run.Peak, 1e-9)
	assert.InDelta(t, 0.16, run.Energy, 1e-9)
}

func TestStore_ApplyAndReset(t *testing.T) {
	s := NewStore()
	assert.False(t, s.IsCalibrated())

	s.ApplyLegacy(0.02, 0.15, 0.40)
	p := s.Profiles()
	assert.True(t, p.Calibrated)
	assert.Equal(t, SourceLegacy, p.Source)
	assert.Equal(t, 0.15, p.Walk.Mean)

	full := models.Features{Mean: 1, Std: 2, Variance: 4, RMS: 1.5, Peak: 3, Energy: 1}
	s.ApplyFull(full, full, full)
	assert.Equal(t, SourceFull, s.Profiles().Source)
	assert.Equal(t, full, s.Profiles().Run)

	s.Reset()
	assert.False(t, s.IsCalibrated())
	assert.Equal(t, models.Features{}, s.Profiles().Rest)
}

func TestStore_SetProfile(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.SetProfile(models.LabelRest, models.Features{Mean: 0.01}))
	require.NoError(t, s.SetProfile(models.LabelWalk, models.Features{Mean: 0.1}))
	assert.False(t, s.IsCalibrated(), "run profile still missing")

	require.NoError(t, s.SetProfile(models.LabelRun, models.Features{Mean: 0.3}))
	assert.True(t, s.IsCalibrated())
	assert.Equal(t, SourceRecorded, s.Profiles().Source)

	err := s.SetProfile(models.LabelPlay, models.Features{})
	assert.ErrorIs(t, err, ErrInvalidActivity)
}

func TestProfiles_For(t *testing.T) {
	p := Profiles{Walk: models.Features{Mean: 0.2}}

	f, ok := p.For(models.LabelWalk)
	assert.True(t, ok)
	assert.Equal(t, 0.2, f.Mean)

	_, ok = p.For(models.LabelPlay)
	assert.False(t, ok)
}

func TestStore_RestorePartialThenRecordMissing(t *testing.T) {
	s := NewStore()
	s.Restore(Profiles{
		Rest:   models.Features{Mean: 0.01},
		Walk:   models.Features{Mean: 0.1},
		Source: SourceRecorded,
	}, [3]bool{true, true, false})
	assert.False(t, s.IsCalibrated())

	require.NoError(t, s.SetProfile(models.LabelRun, models.Features{Mean: 0.3}))
	p := s.Profiles()
	assert.True(t, p.Calibrated)
	assert.Equal(t, 0.01, p.Rest.Mean)
	assert.Equal(t, 0.3, p.Run.Mean)
}

func TestStore_RestoreIgnoresStaleCalibratedFlag(t *testing.T) {
	s := NewStore()
	s.Restore(Profiles{Rest: models.Features{Mean: 0.01}, Calibrated: true}, [3]bool{true, false, false})
	assert.False(t, s.IsCalibrated())
}
