package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wisefido-collar/internal/models"

	"go.uber.org/zap"
)

// ErrDayNotFound 没有该日的汇总
var ErrDayNotFound = errors.New("daily activity not found")

// DailyActivityRepository 每日活动汇总仓库
type DailyActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDailyActivityRepository 创建每日活动仓库
func NewDailyActivityRepository(db *sql.DB, logger *zap.Logger) *DailyActivityRepository {
	return &DailyActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert 写入或覆盖某日汇总
func (r *DailyActivityRepository) Upsert(ctx context.Context, s models.DailySummary) error {
	query := `
		INSERT INTO collar_daily_activity
			(device_id, day, rest_ms, walk_ms, run_ms, play_ms, active_ms, steps, calories_kcal, distance_km, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (device_id, day) DO UPDATE SET
			rest_ms = EXCLUDED.rest_ms,
			walk_ms = EXCLUDED.walk_ms,
			run_ms = EXCLUDED.run_ms,
			play_ms = EXCLUDED.play_ms,
			active_ms = EXCLUDED.active_ms,
			steps = EXCLUDED.steps,
			calories_kcal = EXCLUDED.calories_kcal,
			distance_km = EXCLUDED.distance_km,
			updated_at = now()
	`

	_, err := r.db.ExecContext(ctx, query,
		s.DeviceID, s.Day,
		int64(s.PerLabelMs[models.LabelRest]),
		int64(s.PerLabelMs[models.LabelWalk]),
		int64(s.PerLabelMs[models.LabelRun]),
		int64(s.PerLabelMs[models.LabelPlay]),
		int64(s.ActiveMs),
		int64(s.Steps),
		s.CaloriesKcal,
		s.DistanceKm,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily activity: %w", err)
	}
	return nil
}

// Get 读取某日汇总（只含持久化的计数字段）
func (r *DailyActivityRepository) Get(ctx context.Context, deviceID, day string) (*models.DailySummary, error) {
	query := `
		SELECT rest_ms, walk_ms, run_ms, play_ms, active_ms, steps, calories_kcal, distance_km
		FROM collar_daily_activity
		WHERE device_id = $1 AND day = $2
	`

	var perLabel [models.LabelCount]int64
	var activeMs, steps int64
	s := models.DailySummary{DeviceID: deviceID, Day: day}

	err := r.db.QueryRowContext(ctx, query, deviceID, day).Scan(
		&perLabel[models.LabelRest],
		&perLabel[models.LabelWalk],
		&perLabel[models.LabelRun],
		&perLabel[models.LabelPlay],
		&activeMs,
		&steps,
		&s.CaloriesKcal,
		&s.DistanceKm,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", ErrDayNotFound, deviceID, day)
		}
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}

	s.MinutesByActivity = make(map[string]int64, models.LabelCount)
	s.SecondsByActivity = make(map[string]int64, models.LabelCount)
	for i, ms := range perLabel {
		s.PerLabelMs[i] = uint64(ms)
		name := models.Label(i).String()
		s.MinutesByActivity[name] = ms / 60_000
		s.SecondsByActivity[name] = ms / 1_000
	}
	s.ActiveMs = uint64(activeMs)
	s.ActiveMinutes = activeMs / 60_000
	s.Steps = uint64(steps)
	return &s, nil
}
