// Package preferences stores the user-controlled settings a sync cycle reads
// and the state it writes back (learned coordinates, last notification time).
package preferences

import (
	"context"
	"errors"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// ErrNoLocation is returned by ResolveSelector when neither coordinates nor a
// location name are configured.
var ErrNoLocation = errors.New("no preferred location configured")

// Preferences is a point-in-time copy of the stored preferences.
type Preferences struct {
	PreferredLocationName     string  `json:"preferredLocationName"`
	CoordinatesAvailable      bool    `json:"coordinatesAvailable"`
	Latitude                  float64 `json:"latitude"`
	Longitude                 float64 `json:"longitude"`
	NotificationsEnabled      bool    `json:"notificationsEnabled"`
	LastNotificationUTCMillis int64   `json:"lastNotificationUtcMillis"`
}

// Update is a partial change to Preferences. Nil fields are left as they are.
type Update struct {
	PreferredLocationName *string
	NotificationsEnabled  *bool

	// Coordinates set both values and mark coordinates as available.
	Latitude  *float64
	Longitude *float64

	// ClearCoordinates switches back to name based lookups. A changed
	// PreferredLocationName without a coordinate pair does the same.
	ClearCoordinates bool
}

// Store is the preference store shared by the sync cycle and the API.
type Store interface {
	// PreferredLocationName returns the configured location name.
	PreferredLocationName(ctx context.Context) (string, error)

	// CoordinatesAvailable reports whether coordinate based lookups are enabled.
	CoordinatesAvailable(ctx context.Context) (bool, error)

	// Coordinates returns the stored latitude and longitude.
	Coordinates(ctx context.Context) (lat, lon float64, err error)

	// SetCoordinates stores coordinates and enables coordinate based lookups.
	SetCoordinates(ctx context.Context, lat, lon float64) error

	// NotificationsEnabled reports whether "new weather" notifications are on.
	NotificationsEnabled(ctx context.Context) (bool, error)

	// LastNotification returns the time of the last notification in UTC milliseconds.
	LastNotification(ctx context.Context) (int64, error)

	// SetLastNotification records the time of the last notification.
	SetLastNotification(ctx context.Context, utcMillis int64) error

	// Snapshot returns all preferences at once.
	Snapshot(ctx context.Context) (Preferences, error)

	// Update applies a partial change and returns the result.
	Update(ctx context.Context, u Update) (Preferences, error)
}

// ResolveSelector builds the request selector from the store: coordinates
// when available, otherwise the preferred location name.
func ResolveSelector(ctx context.Context, s Store) (weather.Selector, error) {
	coords, err := s.CoordinatesAvailable(ctx)
	if err != nil {
		return weather.Selector{}, err
	}
	if coords {
		lat, lon, err := s.Coordinates(ctx)
		if err != nil {
			return weather.Selector{}, err
		}
		return weather.ByCoordinates(lat, lon), nil
	}

	name, err := s.PreferredLocationName(ctx)
	if err != nil {
		return weather.Selector{}, err
	}
	if name == "" {
		return weather.Selector{}, ErrNoLocation
	}
	return weather.ByName(name), nil
}

// apply merges u into p. Renaming the location without a coordinate pair
// drops the stored coordinates, which usually were learned for the old name.
func (p *Preferences) apply(u Update) {
	renamed := u.PreferredLocationName != nil && *u.PreferredLocationName != p.PreferredLocationName
	if u.PreferredLocationName != nil {
		p.PreferredLocationName = *u.PreferredLocationName
	}
	if u.NotificationsEnabled != nil {
		p.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.ClearCoordinates || renamed {
		p.CoordinatesAvailable = false
		p.Latitude, p.Longitude = 0, 0
	}
	if u.Latitude != nil && u.Longitude != nil {
		p.Latitude, p.Longitude = *u.Latitude, *u.Longitude
		p.CoordinatesAvailable = true
	}
}
