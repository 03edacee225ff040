package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/inference"
	"wisefido-collar/internal/models"
	"wisefido-collar/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCalibrationRepo struct {
	saved   map[models.Label]models.Features
	sources map[models.Label]string
	records []repository.CalibrationRecord
	deleted bool
	err     error
}

func newFakeCalibrationRepo() *fakeCalibrationRepo {
	return &fakeCalibrationRepo{
		saved:   make(map[models.Label]models.Features),
		sources: make(map[models.Label]string),
	}
}

func (f *fakeCalibrationRepo) SaveProfiles(ctx context.Context, deviceID string, p calibration.Profiles) error {
	if f.err != nil {
		return f.err
	}
	for _, l := range []models.Label{models.LabelRest, models.LabelWalk, models.LabelRun} {
		feat, _ := p.For(l)
		f.saved[l] = feat
		f.sources[l] = p.Source
	}
	return nil
}

func (f *fakeCalibrationRepo) SaveProfile(ctx context.Context, deviceID string, activity models.Label, feat models.Features, source string) error {
	if f.err != nil {
		return f.err
	}
	f.saved[activity] = feat
	f.sources[activity] = source
	return nil
}

func (f *fakeCalibrationRepo) Load(ctx context.Context, deviceID string) ([]repository.CalibrationRecord, error) {
	return f.records, f.err
}

func (f *fakeCalibrationRepo) Delete(ctx context.Context, deviceID string) error {
	f.deleted = true
	return f.err
}

func newCalibrationFixture(repo CalibrationRepo) (CalibrationService, *calibration.Store, *inference.Pipeline) {
	store := calibration.NewStore()
	pipeline := inference.NewPipeline(inference.DefaultConfig(), store)
	return NewCalibrationService("collar-1", store, pipeline, repo, zap.NewNop()), store, pipeline
}

func TestCalibrationService_ApplyLegacyPersists(t *testing.T) {
	repo := newFakeCalibrationRepo()
	svc, store, _ := newCalibrationFixture(repo)

	p, err := svc.ApplyLegacy(context.Background(), 0.02, 0.15, 0.40)
	require.NoError(t, err)
	assert.True(t, p.Calibrated)
	assert.Equal(t, calibration.SourceLegacy, p.Source)
	assert.True(t, store.IsCalibrated())
	assert.InDelta(t, 0.15, repo.saved[models.LabelWalk].Mean, 1e-9)
	assert.Equal(t, calibration.SourceLegacy, repo.sources[models.LabelRun])
}

func TestCalibrationService_ApplyFullReportsPersistError(t *testing.T) {
	repo := newFakeCalibrationRepo()
	repo.err = errors.New("db down")
	svc, store, _ := newCalibrationFixture(repo)

	_, err := svc.ApplyFull(context.Background(), models.Features{Mean: 0.01}, models.Features{Mean: 0.1}, models.Features{Mean: 0.3})
	require.Error(t, err)
	// 内存中的档案仍然生效
	assert.True(t, store.IsCalibrated())
}

func TestCalibrationService_RecordingFlow(t *testing.T) {
	repo := newFakeCalibrationRepo()
	svc, store, pipeline := newCalibrationFixture(repo)
	ctx := context.Background()

	require.NoError(t, svc.StartRecording(models.LabelWalk))
	assert.ErrorIs(t, svc.StartRecording(models.LabelRun), inference.ErrAlreadyRecording)

	for i := 0; i < 20; i++ {
		pipeline.Process(0.3, 0, 1)
	}
	rec, ok := svc.Recording()
	require.True(t, ok)
	assert.Equal(t, models.LabelWalk, rec.Activity)
	assert.Equal(t, 20, rec.Samples)

	activity, f, err := svc.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.LabelWalk, activity)
	assert.Greater(t, f.Mean, 0.0)
	assert.Equal(t, f, store.Profiles().Walk)
	assert.False(t, store.IsCalibrated())
	assert.Equal(t, calibration.SourceRecorded, repo.sources[models.LabelWalk])

	_, _, err = svc.StopRecording(ctx)
	assert.ErrorIs(t, err, inference.ErrNotRecording)
}

func TestCalibrationService_RecordingPlayIsRejected(t *testing.T) {
	svc, _, _ := newCalibrationFixture(nil)
	assert.ErrorIs(t, svc.StartRecording(models.LabelPlay), calibration.ErrInvalidActivity)
}

func TestCalibrationService_Restore(t *testing.T) {
	repo := newFakeCalibrationRepo()
	at := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	repo.records = []repository.CalibrationRecord{
		{Activity: models.LabelRest, Features: models.Features{Mean: 0.02}, Source: calibration.SourceFull, UpdatedAt: at},
		{Activity: models.LabelWalk, Features: models.Features{Mean: 0.15}, Source: calibration.SourceFull, UpdatedAt: at},
		{Activity: models.LabelRun, Features: models.Features{Mean: 0.40}, Source: calibration.SourceFull, UpdatedAt: at.Add(time.Hour)},
	}
	svc, store, _ := newCalibrationFixture(repo)

	require.NoError(t, svc.Restore(context.Background()))
	p := store.Profiles()
	assert.True(t, p.Calibrated)
	assert.Equal(t, 0.40, p.Run.Mean)
	assert.Equal(t, at.Add(time.Hour), p.UpdatedAt)
}

func TestCalibrationService_RestorePartialStaysUncalibrated(t *testing.T) {
	repo := newFakeCalibrationRepo()
	repo.records = []repository.CalibrationRecord{
		{Activity: models.LabelRest, Features: models.Features{Mean: 0.02}, Source: calibration.SourceRecorded},
	}
	svc, store, _ := newCalibrationFixture(repo)

	require.NoError(t, svc.Restore(context.Background()))
	assert.False(t, store.IsCalibrated())
	assert.Equal(t, 0.02, store.Profiles().Rest.Mean)
}

func TestCalibrationService_RestorePartialThenRecordCompletes(t *testing.T) {
	repo := newFakeCalibrationRepo()
	repo.records = []repository.CalibrationRecord{
		{Activity: models.LabelRest, Features: models.Features{Mean: 0.02}, Source: calibration.SourceRecorded},
		{Activity: models.LabelWalk, Features: models.Features{Mean: 0.15}, Source: calibration.SourceRecorded},
	}
	svc, store, pipeline := newCalibrationFixture(repo)
	ctx := context.Background()

	require.NoError(t, svc.Restore(ctx))
	require.False(t, store.IsCalibrated())

	require.NoError(t, svc.StartRecording(models.LabelRun))
	for i := 0; i < 20; i++ {
		pipeline.Process(1.5, 0, 1)
	}
	_, _, err := svc.StopRecording(ctx)
	require.NoError(t, err)

	p := store.Profiles()
	assert.True(t, p.Calibrated)
	assert.Equal(t, calibration.SourceRecorded, p.Source)
	assert.Equal(t, 0.02, p.Rest.Mean)
	assert.Equal(t, 0.15, p.Walk.Mean)
	assert.Greater(t, p.Run.Mean, 0.0)
}

func TestCalibrationService_ResetAndSensitivity(t *testing.T) {
	repo := newFakeCalibrationRepo()
	svc, store, _ := newCalibrationFixture(repo)
	ctx := context.Background()

	_, err := svc.ApplyLegacy(ctx, 0.02, 0.15, 0.40)
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx))
	assert.False(t, store.IsCalibrated())
	assert.True(t, repo.deleted)

	require.NoError(t, svc.SetSensitivity(1.5))
	assert.Equal(t, 1.5, svc.Sensitivity())
	assert.Error(t, svc.SetSensitivity(0))
}
