package service

import (
	"context"
	"fmt"

	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/inference"
	"wisefido-collar/internal/models"
	"wisefido-collar/internal/repository"

	"go.uber.org/zap"
)

// CalibrationRepo 校准档案持久化（repository.CalibrationRepository 实现）
type CalibrationRepo interface {
	SaveProfiles(ctx context.Context, deviceID string, p calibration.Profiles) error
	SaveProfile(ctx context.Context, deviceID string, activity models.Label, f models.Features, source string) error
	Load(ctx context.Context, deviceID string) ([]repository.CalibrationRecord, error)
	Delete(ctx context.Context, deviceID string) error
}

// CalibrationService 校准工作流服务接口
type CalibrationService interface {
	// 档案
	Profiles() calibration.Profiles
	ApplyFull(ctx context.Context, rest, walk, run models.Features) (calibration.Profiles, error)
	ApplyLegacy(ctx context.Context, restMean, walkMean, runMean float64) (calibration.Profiles, error)
	Reset(ctx context.Context) error
	Restore(ctx context.Context) error

	// 录制
	StartRecording(activity models.Label) error
	StopRecording(ctx context.Context) (models.Label, models.Features, error)
	Recording() (inference.Recording, bool)

	// 灵敏度
	SetSensitivity(sf float64) error
	Sensitivity() float64
}

// calibrationService 实现
type calibrationService struct {
	deviceID string
	store    *calibration.Store
	pipeline *inference.Pipeline
	repo     CalibrationRepo // 可以为 nil（未配置数据库，只保存在内存中）
	logger   *zap.Logger
}

// NewCalibrationService 创建 CalibrationService 实例
func NewCalibrationService(deviceID string, store *calibration.Store, pipeline *inference.Pipeline, repo CalibrationRepo, logger *zap.Logger) CalibrationService {
	return &calibrationService{
		deviceID: deviceID,
		store:    store,
		pipeline: pipeline,
		repo:     repo,
		logger:   logger,
	}
}

func (s *calibrationService) Profiles() calibration.Profiles {
	return s.store.Profiles()
}

// ApplyFull 应用完整校准并持久化
func (s *calibrationService) ApplyFull(ctx context.Context, rest, walk, run models.Features) (calibration.Profiles, error) {
	s.store.ApplyFull(rest, walk, run)
	return s.persistAll(ctx)
}

// ApplyLegacy 应用 3 值校准并持久化
func (s *calibrationService) ApplyLegacy(ctx context.Context, restMean, walkMean, runMean float64) (calibration.Profiles, error) {
	s.store.ApplyLegacy(restMean, walkMean, runMean)
	return s.persistAll(ctx)
}

func (s *calibrationService) persistAll(ctx context.Context) (calibration.Profiles, error) {
	p := s.store.Profiles()
	s.logger.Info("Calibration applied",
		zap.String("device_id", s.deviceID),
		zap.String("source", p.Source),
	)
	if s.repo == nil {
		return p, nil
	}
	if err := s.repo.SaveProfiles(ctx, s.deviceID, p); err != nil {
		return p, fmt.Errorf("failed to persist calibration: %w", err)
	}
	return p, nil
}

// Reset 清除校准，分类器回到阈值规则
func (s *calibrationService) Reset(ctx context.Context) error {
	s.store.Reset()
	if s.repo == nil {
		return nil
	}
	return s.repo.Delete(ctx, s.deviceID)
}

// Restore 启动时从数据库恢复档案。三个档案齐全才视为已校准。
func (s *calibrationService) Restore(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	records, err := s.repo.Load(ctx, s.deviceID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		s.logger.Info("No stored calibration, using threshold classifier",
			zap.String("device_id", s.deviceID),
		)
		return nil
	}

	var p calibration.Profiles
	var have [3]bool
	for _, rec := range records {
		switch rec.Activity {
		case models.LabelRest:
			p.Rest = rec.Features
		case models.LabelWalk:
			p.Walk = rec.Features
		case models.LabelRun:
			p.Run = rec.Features
		default:
			continue
		}
		have[rec.Activity] = true
		p.Source = rec.Source
		if rec.UpdatedAt.After(p.UpdatedAt) {
			p.UpdatedAt = rec.UpdatedAt
		}
	}
	s.store.Restore(p, have)
	p = s.store.Profiles()

	s.logger.Info("Calibration restored",
		zap.String("device_id", s.deviceID),
		zap.Bool("calibrated", p.Calibrated),
		zap.String("source", p.Source),
	)
	return nil
}

func (s *calibrationService) StartRecording(activity models.Label) error {
	if err := s.pipeline.StartCalibration(activity); err != nil {
		return err
	}
	s.logger.Info("Calibration recording started",
		zap.String("device_id", s.deviceID),
		zap.String("activity", activity.String()),
	)
	return nil
}

// StopRecording 结束录制，把提取的特征作为该活动的档案保存
func (s *calibrationService) StopRecording(ctx context.Context) (models.Label, models.Features, error) {
	activity, f, err := s.pipeline.StopCalibration()
	if err != nil {
		return activity, f, err
	}
	if err := s.store.SetProfile(activity, f); err != nil {
		return activity, f, err
	}
	s.logger.Info("Calibration recording stored",
		zap.String("device_id", s.deviceID),
		zap.String("activity", activity.String()),
		zap.Float64("mean", f.Mean),
		zap.Float64("std", f.Std),
		zap.Bool("calibrated", s.store.IsCalibrated()),
	)

	if s.repo != nil {
		if err := s.repo.SaveProfile(ctx, s.deviceID, activity, f, calibration.SourceRecorded); err != nil {
			return activity, f, fmt.Errorf("failed to persist calibration: %w", err)
		}
	}
	return activity, f, nil
}

func (s *calibrationService) Recording() (inference.Recording, bool) {
	return s.pipeline.Recording()
}

func (s *calibrationService) SetSensitivity(sf float64) error {
	return s.pipeline.SetSensitivity(sf)
}

func (s *calibrationService) Sensitivity() float64 {
	return s.pipeline.Sensitivity()
}
