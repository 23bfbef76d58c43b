package preferences

import (
	"context"
	"sync"
)

// InMemoryStore is an in-memory implementation of Store for testing and
// single-process deployments.
type InMemoryStore struct {
	mu    sync.RWMutex
	prefs Preferences
}

// NewInMemoryStore creates a store holding the given initial preferences.
func NewInMemoryStore(initial Preferences) *InMemoryStore {
	return &InMemoryStore{prefs: initial}
}

// PreferredLocationName returns the configured location name.
func (s *InMemoryStore) PreferredLocationName(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.PreferredLocationName, nil
}

// CoordinatesAvailable reports whether coordinate based lookups are enabled.
func (s *InMemoryStore) CoordinatesAvailable(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.CoordinatesAvailable, nil
}

// Coordinates returns the stored latitude and longitude.
func (s *InMemoryStore) Coordinates(_ context.Context) (float64, float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.Latitude, s.prefs.Longitude, nil
}

// SetCoordinates stores coordinates and enables coordinate based lookups.
func (s *InMemoryStore) SetCoordinates(_ context.Context, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.Latitude, s.prefs.Longitude = lat, lon
	s.prefs.CoordinatesAvailable = true
	return nil
}

// NotificationsEnabled reports whether notifications are on.
func (s *InMemoryStore) NotificationsEnabled(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.NotificationsEnabled, nil
}

// LastNotification returns the last notification time in UTC milliseconds.
func (s *InMemoryStore) LastNotification(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs.LastNotificationUTCMillis, nil
}

// SetLastNotification records the last notification time.
func (s *InMemoryStore) SetLastNotification(_ context.Context, utcMillis int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.LastNotificationUTCMillis = utcMillis
	return nil
}

// Snapshot returns a copy of the preferences.
func (s *InMemoryStore) Snapshot(_ context.Context) (Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs, nil
}

// Update applies a partial change.
func (s *InMemoryStore) Update(_ context.Context, u Update) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs.apply(u)
	return s.prefs, nil
}

// Ensure InMemoryStore implements Store interface.
var _ Store = (*InMemoryStore)(nil)
