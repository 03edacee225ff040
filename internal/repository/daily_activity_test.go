package repository

import (
	"context"
	"database/sql"
	"testing"

	"wisefido-collar/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDailyActivity_Upsert(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewDailyActivityRepository(db, zap.NewNop())

	s := models.DailySummary{
		DeviceID:     "collar-1",
		Day:          "2026-03-01",
		PerLabelMs:   [models.LabelCount]uint64{3_600_000, 1_800_000, 120_000, 60_000},
		ActiveMs:     1_980_000,
		Steps:        2400,
		CaloriesKcal: 120,
		DistanceKm:   1.2,
	}

	mock.ExpectExec(`INSERT INTO collar_daily_activity`).
		WithArgs("collar-1", "2026-03-01", int64(3_600_000), int64(1_800_000), int64(120_000), int64(60_000), int64(1_980_000), int64(2400), 120.0, 1.2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), s))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyActivity_Get(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewDailyActivityRepository(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{
		"rest_ms", "walk_ms", "run_ms", "play_ms", "active_ms", "steps", "calories_kcal", "distance_km",
	}).AddRow(int64(3_600_000), int64(1_800_000), int64(125_000), int64(0), int64(1_925_000), int64(2000), 100.0, 1.0)

	mock.ExpectQuery(`SELECT rest_ms`).
		WithArgs("collar-1", "2026-03-01").
		WillReturnRows(rows)

	s, err := repo.Get(context.Background(), "collar-1", "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_800_000), s.PerLabelMs[models.LabelWalk])
	assert.Equal(t, int64(32), s.ActiveMinutes)
	assert.Equal(t, int64(125), s.SecondsByActivity["run"])
	assert.Equal(t, uint64(2000), s.Steps)
	assert.Nil(t, s.CurrentLabel)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyActivity_GetNotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewDailyActivityRepository(db, zap.NewNop())

	mock.ExpectQuery(`SELECT rest_ms`).
		WithArgs("collar-1", "2026-01-01").
		WillReturnError(sql.ErrNoRows)

	s, err := repo.Get(context.Background(), "collar-1", "2026-01-01")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrDayNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
