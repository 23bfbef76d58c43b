package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// preferencesRowID is the key of the single preferences row.
const preferencesRowID = 1

// PostgresStore is a PostgreSQL implementation of Store. Preferences live in a
// single row of sync_preferences, created on first use.
type PostgresStore struct {
	pool     *pgxpool.Pool
	defaults Preferences
}

// NewPostgresStore creates a store. defaults seeds the row when it does not exist yet.
func NewPostgresStore(pool *pgxpool.Pool, defaults Preferences) *PostgresStore {
	return &PostgresStore{pool: pool, defaults: defaults}
}

// PreferredLocationName returns the configured location name.
func (s *PostgresStore) PreferredLocationName(ctx context.Context) (string, error) {
	p, err := s.Snapshot(ctx)
	return p.PreferredLocationName, err
}

// CoordinatesAvailable reports whether coordinate based lookups are enabled.
func (s *PostgresStore) CoordinatesAvailable(ctx context.Context) (bool, error) {
	p, err := s.Snapshot(ctx)
	return p.CoordinatesAvailable, err
}

// Coordinates returns the stored latitude and longitude.
func (s *PostgresStore) Coordinates(ctx context.Context) (float64, float64, error) {
	p, err := s.Snapshot(ctx)
	return p.Latitude, p.Longitude, err
}

// SetCoordinates stores coordinates and enables coordinate based lookups.
func (s *PostgresStore) SetCoordinates(ctx context.Context, lat, lon float64) error {
	if err := s.ensureRow(ctx); err != nil {
		return err
	}
	query := `
		UPDATE sync_preferences
		SET latitude = $2, longitude = $3, coordinates_available = TRUE, updated_at = $4
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, preferencesRowID, lat, lon, time.Now()); err != nil {
		return fmt.Errorf("set coordinates: %w", err)
	}
	return nil
}

// NotificationsEnabled reports whether notifications are on.
func (s *PostgresStore) NotificationsEnabled(ctx context.Context) (bool, error) {
	p, err := s.Snapshot(ctx)
	return p.NotificationsEnabled, err
}

// LastNotification returns the last notification time in UTC milliseconds.
func (s *PostgresStore) LastNotification(ctx context.Context) (int64, error) {
	p, err := s.Snapshot(ctx)
	return p.LastNotificationUTCMillis, err
}

// SetLastNotification records the last notification time.
func (s *PostgresStore) SetLastNotification(ctx context.Context, utcMillis int64) error {
	if err := s.ensureRow(ctx); err != nil {
		return err
	}
	query := `
		UPDATE sync_preferences
		SET last_notification_ms = $2, updated_at = $3
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, preferencesRowID, utcMillis, time.Now()); err != nil {
		return fmt.Errorf("set last notification: %w", err)
	}
	return nil
}

// Snapshot returns all preferences.
func (s *PostgresStore) Snapshot(ctx context.Context) (Preferences, error) {
	query := `
		SELECT location_name, coordinates_available, latitude, longitude,
		       notifications_enabled, last_notification_ms
		FROM sync_preferences
		WHERE id = $1
	`

	var p Preferences
	err := s.pool.QueryRow(ctx, query, preferencesRowID).Scan(
		&p.PreferredLocationName,
		&p.CoordinatesAvailable,
		&p.Latitude,
		&p.Longitude,
		&p.NotificationsEnabled,
		&p.LastNotificationUTCMillis,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.defaults, nil
		}
		return Preferences{}, fmt.Errorf("read preferences: %w", err)
	}
	return p, nil
}

// Update applies a partial change in a single transaction.
func (s *PostgresStore) Update(ctx context.Context, u Update) (Preferences, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Preferences{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	if err := insertDefaults(ctx, tx, s.defaults); err != nil {
		return Preferences{}, err
	}

	var p Preferences
	err = tx.QueryRow(ctx, `
		SELECT location_name, coordinates_available, latitude, longitude,
		       notifications_enabled, last_notification_ms
		FROM sync_preferences
		WHERE id = $1
		FOR UPDATE
	`, preferencesRowID).Scan(
		&p.PreferredLocationName,
		&p.CoordinatesAvailable,
		&p.Latitude,
		&p.Longitude,
		&p.NotificationsEnabled,
		&p.LastNotificationUTCMillis,
	)
	if err != nil {
		return Preferences{}, fmt.Errorf("lock preferences: %w", err)
	}

	p.apply(u)

	_, err = tx.Exec(ctx, `
		UPDATE sync_preferences
		SET location_name = $2, coordinates_available = $3, latitude = $4, longitude = $5,
		    notifications_enabled = $6, updated_at = $7
		WHERE id = $1
	`, preferencesRowID, p.PreferredLocationName, p.CoordinatesAvailable, p.Latitude, p.Longitude,
		p.NotificationsEnabled, time.Now())
	if err != nil {
		return Preferences{}, fmt.Errorf("update preferences: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Preferences{}, fmt.Errorf("commit preferences: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ensureRow(ctx context.Context) error {
	return insertDefaults(ctx, s.pool, s.defaults)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertDefaults(ctx context.Context, db execer, d Preferences) error {
	query := `
		INSERT INTO sync_preferences (
			id, location_name, coordinates_available, latitude, longitude,
			notifications_enabled, last_notification_ms, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := db.Exec(ctx, query, preferencesRowID, d.PreferredLocationName, d.CoordinatesAvailable,
		d.Latitude, d.Longitude, d.NotificationsEnabled, d.LastNotificationUTCMillis, time.Now())
	if err != nil {
		return fmt.Errorf("seed preferences: %w", err)
	}
	return nil
}

// Ensure PostgresStore implements Store interface.
var _ Store = (*PostgresStore)(nil)
