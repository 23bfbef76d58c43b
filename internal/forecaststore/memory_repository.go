package forecaststore

import (
	"context"
	"slices"
	"sync"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// InMemoryRepository is an in-memory implementation of Repository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	records  []weather.ForecastRecord
	aviation *weather.AviationRecord
	replaces int
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// ReplaceAll swaps the stored rows for a copy of records.
func (r *InMemoryRepository) ReplaceAll(_ context.Context, records []weather.ForecastRecord) error {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b weather.ForecastRecord) int {
		switch {
		case a.TimestampUTCMillis < b.TimestampUTCMillis:
			return -1
		case a.TimestampUTCMillis > b.TimestampUTCMillis:
			return 1
		}
		return 0
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = sorted
	r.replaces++
	return nil
}

// UpsertAviation stores a copy of rec.
func (r *InMemoryRepository) UpsertAviation(_ context.Context, rec weather.AviationRecord) error {
	rec.Clouds = slices.Clone(rec.Clouds)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.aviation = &rec
	return nil
}

// List returns a copy of the stored rows.
func (r *InMemoryRepository) List(_ context.Context) ([]weather.ForecastRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.records == nil {
		return []weather.ForecastRecord{}, nil
	}
	return slices.Clone(r.records), nil
}

// LatestAviation returns the stored aviation record.
func (r *InMemoryRepository) LatestAviation(_ context.Context) (*weather.AviationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.aviation == nil {
		return nil, ErrNoAviation
	}
	rec := *r.aviation
	rec.Clouds = slices.Clone(rec.Clouds)
	return &rec, nil
}

// ReplaceCount returns how many times ReplaceAll has been called.
func (r *InMemoryRepository) ReplaceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.replaces
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
