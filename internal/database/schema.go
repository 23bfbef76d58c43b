package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS forecast_days (
		day_utc_ms         BIGINT PRIMARY KEY,
		humidity_pct       INTEGER NOT NULL,
		pressure_hpa       DOUBLE PRECISION NOT NULL,
		wind_speed_mps     DOUBLE PRECISION NOT NULL,
		wind_direction_deg DOUBLE PRECISION NOT NULL,
		max_temp_c         DOUBLE PRECISION NOT NULL,
		min_temp_c         DOUBLE PRECISION NOT NULL,
		condition_code     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS aviation_observations (
		id                SMALLINT PRIMARY KEY,
		raw_text          TEXT NOT NULL,
		conditions_code   TEXT NOT NULL,
		conditions_text   TEXT NOT NULL,
		dewpoint_c        TEXT NOT NULL,
		dewpoint_f        TEXT NOT NULL,
		flight_category   TEXT NOT NULL,
		visibility_miles  TEXT NOT NULL,
		visibility_meters TEXT NOT NULL,
		clouds            JSONB NOT NULL DEFAULT '[]',
		observed_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_preferences (
		id                    SMALLINT PRIMARY KEY,
		location_name         TEXT NOT NULL DEFAULT '',
		coordinates_available BOOLEAN NOT NULL DEFAULT FALSE,
		latitude              DOUBLE PRECISION NOT NULL DEFAULT 0,
		longitude             DOUBLE PRECISION NOT NULL DEFAULT 0,
		notifications_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		last_notification_ms  BIGINT NOT NULL DEFAULT 0,
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the tables used by the stores if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
