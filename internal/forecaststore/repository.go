// Package forecaststore persists the forecast rows produced by a sync cycle and,
// optionally, the latest aviation observation.
package forecaststore

import (
	"context"
	"errors"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// ErrNoAviation is returned by LatestAviation when nothing has been stored.
var ErrNoAviation = errors.New("no aviation record stored")

// Repository defines the interface for forecast storage.
type Repository interface {
	// ReplaceAll atomically replaces every stored forecast row with records.
	// Readers see either the old rows or the new ones, never a mix.
	ReplaceAll(ctx context.Context, records []weather.ForecastRecord) error

	// UpsertAviation stores rec as the latest aviation observation.
	UpsertAviation(ctx context.Context, rec weather.AviationRecord) error

	// List returns the stored forecast rows ordered by timestamp.
	List(ctx context.Context) ([]weather.ForecastRecord, error)

	// LatestAviation returns the last stored aviation observation.
	LatestAviation(ctx context.Context) (*weather.AviationRecord, error)
}
