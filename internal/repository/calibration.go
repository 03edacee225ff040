package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-collar/internal/calibration"
	"wisefido-collar/internal/models"

	"go.uber.org/zap"
)

// CalibrationRecord 一个活动的持久化校准档案
type CalibrationRecord struct {
	Activity  models.Label
	Features  models.Features
	Source    string
	UpdatedAt time.Time
}

// CalibrationRepository 校准档案仓库
type CalibrationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCalibrationRepository 创建校准档案仓库
func NewCalibrationRepository(db *sql.DB, logger *zap.Logger) *CalibrationRepository {
	return &CalibrationRepository{
		db:     db,
		logger: logger,
	}
}

const upsertCalibrationSQL = `
	INSERT INTO collar_calibrations (device_id, activity, mean, std, variance, rms, peak, energy, source, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (device_id, activity) DO UPDATE SET
		mean = EXCLUDED.mean,
		std = EXCLUDED.std,
		variance = EXCLUDED.variance,
		rms = EXCLUDED.rms,
		peak = EXCLUDED.peak,
		energy = EXCLUDED.energy,
		source = EXCLUDED.source,
		updated_at = EXCLUDED.updated_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func upsertProfile(ctx context.Context, ex execer, deviceID string, activity models.Label, f models.Features, source string, at time.Time) error {
	_, err := ex.ExecContext(ctx, upsertCalibrationSQL,
		deviceID, activity.String(),
		f.Mean, f.Std, f.Variance, f.RMS, f.Peak, f.Energy,
		source, at,
	)
	return err
}

// SaveProfiles 在一个事务中保存三个活动的档案
func (r *CalibrationRepository) SaveProfiles(ctx context.Context, deviceID string, p calibration.Profiles) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	at := p.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	for _, activity := range []models.Label{models.LabelRest, models.LabelWalk, models.LabelRun} {
		f, _ := p.For(activity)
		if err := upsertProfile(ctx, tx, deviceID, activity, f, p.Source, at); err != nil {
			return fmt.Errorf("failed to save %s calibration: %w", activity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit calibration: %w", err)
	}
	return nil
}

// SaveProfile 保存单个活动的档案
func (r *CalibrationRepository) SaveProfile(ctx context.Context, deviceID string, activity models.Label, f models.Features, source string) error {
	if _, ok := (calibration.Profiles{}).For(activity); !ok {
		return fmt.Errorf("%w: %s", calibration.ErrInvalidActivity, activity)
	}
	if err := upsertProfile(ctx, r.db, deviceID, activity, f, source, time.Now()); err != nil {
		return fmt.Errorf("failed to save %s calibration: %w", activity, err)
	}
	return nil
}

// Load 读取设备的全部档案
func (r *CalibrationRepository) Load(ctx context.Context, deviceID string) ([]CalibrationRecord, error) {
	query := `
		SELECT activity, mean, std, variance, rms, peak, energy, source, updated_at
		FROM collar_calibrations
		WHERE device_id = $1
		ORDER BY activity
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query calibrations: %w", err)
	}
	defer rows.Close()

	var records []CalibrationRecord
	for rows.Next() {
		var rec CalibrationRecord
		var activity string
		if err := rows.Scan(
			&activity,
			&rec.Features.Mean,
			&rec.Features.Std,
			&rec.Features.Variance,
			&rec.Features.RMS,
			&rec.Features.Peak,
			&rec.Features.Energy,
			&rec.Source,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan calibration: %w", err)
		}

		label, err := models.ParseLabel(activity)
		if err != nil {
			r.logger.Warn("Skipping calibration row with unknown activity",
				zap.String("device_id", deviceID),
				zap.String("activity", activity),
			)
			continue
		}
		rec.Activity = label
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate calibrations: %w", err)
	}
	return records, nil
}

// Delete 删除设备的全部档案
func (r *CalibrationRepository) Delete(ctx context.Context, deviceID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM collar_calibrations WHERE device_id = $1`, deviceID); err != nil {
		return fmt.Errorf("failed to delete calibrations: %w", err)
	}
	return nil
}
