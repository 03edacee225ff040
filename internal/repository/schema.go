package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 项圈服务使用的表
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS collar_calibrations (
		device_id  TEXT        NOT NULL,
		activity   TEXT        NOT NULL,
		mean       DOUBLE PRECISION NOT NULL,
		std        DOUBLE PRECISION NOT NULL,
		variance   DOUBLE PRECISION NOT NULL,
		rms        DOUBLE PRECISION NOT NULL,
		peak       DOUBLE PRECISION NOT NULL,
		energy     DOUBLE PRECISION NOT NULL,
		source     TEXT        NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (device_id, activity)
	)`,
	`CREATE TABLE IF NOT EXISTS collar_daily_activity (
		device_id     TEXT   NOT NULL,
		day           DATE   NOT NULL,
		rest_ms       BIGINT NOT NULL DEFAULT 0,
		walk_ms       BIGINT NOT NULL DEFAULT 0,
		run_ms        BIGINT NOT NULL DEFAULT 0,
		play_ms       BIGINT NOT NULL DEFAULT 0,
		active_ms     BIGINT NOT NULL DEFAULT 0,
		steps         BIGINT NOT NULL DEFAULT 0,
		calories_kcal DOUBLE PRECISION NOT NULL DEFAULT 0,
		distance_km   DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (device_id, day)
	)`,
}

// EnsureSchema 创建缺失的表
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
