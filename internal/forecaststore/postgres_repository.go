package forecaststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// aviationRowID is the key of the single latest-observation row.
const aviationRowID = 1

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL forecast repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ReplaceAll deletes every forecast row and inserts records in one transaction.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, records []weather.ForecastRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	if _, err := tx.Exec(ctx, `DELETE FROM forecast_days`); err != nil {
		return fmt.Errorf("delete forecast rows: %w", err)
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{
			rec.TimestampUTCMillis,
			rec.HumidityPercent,
			rec.PressureHPa,
			rec.WindSpeedMPS,
			rec.WindDirectionDeg,
			rec.MaxTempC,
			rec.MinTempC,
			rec.ConditionCode,
		})
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"forecast_days"},
		[]string{
			"day_utc_ms", "humidity_pct", "pressure_hpa", "wind_speed_mps",
			"wind_direction_deg", "max_temp_c", "min_temp_c", "condition_code",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert forecast rows: %w", err)
	}

	return tx.Commit(ctx)
}

// UpsertAviation stores rec as the latest observation.
func (r *PostgresRepository) UpsertAviation(ctx context.Context, rec weather.AviationRecord) error {
	clouds, err := json.Marshal(rec.Clouds)
	if err != nil {
		return fmt.Errorf("encode clouds: %w", err)
	}

	query := `
		INSERT INTO aviation_observations (
			id, raw_text, conditions_code, conditions_text, dewpoint_c, dewpoint_f,
			flight_category, visibility_miles, visibility_meters, clouds, observed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			raw_text = EXCLUDED.raw_text,
			conditions_code = EXCLUDED.conditions_code,
			conditions_text = EXCLUDED.conditions_text,
			dewpoint_c = EXCLUDED.dewpoint_c,
			dewpoint_f = EXCLUDED.dewpoint_f,
			flight_category = EXCLUDED.flight_category,
			visibility_miles = EXCLUDED.visibility_miles,
			visibility_meters = EXCLUDED.visibility_meters,
			clouds = EXCLUDED.clouds,
			observed_at = EXCLUDED.observed_at
	`

	_, err = r.pool.Exec(ctx, query,
		aviationRowID,
		rec.RawText,
		rec.ConditionsCode,
		rec.ConditionsText,
		rec.DewpointC,
		rec.DewpointF,
		rec.FlightCategory,
		rec.VisibilityMiles,
		rec.VisibilityMeters,
		clouds,
		rec.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert aviation: %w", err)
	}
	return nil
}

// List returns the stored forecast rows ordered by day.
func (r *PostgresRepository) List(ctx context.Context) ([]weather.ForecastRecord, error) {
	query := `
		SELECT day_utc_ms, humidity_pct, pressure_hpa, wind_speed_mps,
		       wind_direction_deg, max_temp_c, min_temp_c, condition_code
		FROM forecast_days
		ORDER BY day_utc_ms
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query forecast rows: %w", err)
	}
	defer rows.Close()

	records := []weather.ForecastRecord{}
	for rows.Next() {
		var rec weather.ForecastRecord
		err := rows.Scan(
			&rec.TimestampUTCMillis,
			&rec.HumidityPercent,
			&rec.PressureHPa,
			&rec.WindSpeedMPS,
			&rec.WindDirectionDeg,
			&rec.MaxTempC,
			&rec.MinTempC,
			&rec.ConditionCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scan forecast row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// LatestAviation returns the stored observation or ErrNoAviation.
func (r *PostgresRepository) LatestAviation(ctx context.Context) (*weather.AviationRecord, error) {
	query := `
		SELECT raw_text, conditions_code, conditions_text, dewpoint_c, dewpoint_f,
		       flight_category, visibility_miles, visibility_meters, clouds, observed_at
		FROM aviation_observations
		WHERE id = $1
	`

	var (
		rec        weather.AviationRecord
		cloudsJSON []byte
		observedAt time.Time
	)
	err := r.pool.QueryRow(ctx, query, aviationRowID).Scan(
		&rec.RawText,
		&rec.ConditionsCode,
		&rec.ConditionsText,
		&rec.DewpointC,
		&rec.DewpointF,
		&rec.FlightCategory,
		&rec.VisibilityMiles,
		&rec.VisibilityMeters,
		&cloudsJSON,
		&observedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoAviation
		}
		return nil, fmt.Errorf("read aviation: %w", err)
	}

	if err := json.Unmarshal(cloudsJSON, &rec.Clouds); err != nil {
		return nil, fmt.Errorf("decode clouds: %w", err)
	}
	rec.ObservedAt = observedAt.UTC()

	return &rec, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
