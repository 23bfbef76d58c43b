package models

import (
	"github.com/forecastsync/forecastsync/internal/preferences"
)

// PreferencesResponse is the stored preference set.
type PreferencesResponse struct {
	PreferredLocationName string     `json:"preferredLocationName"`
	Latitude              *float64   `json:"latitude,omitempty"`
	Longitude             *float64   `json:"longitude,omitempty"`
	NotificationsEnabled  bool       `json:"notificationsEnabled"`
	LastNotificationAt    *Timestamp `json:"lastNotificationAt,omitempty"`
}

// NewPreferencesResponse converts a preferences snapshot.
func NewPreferencesResponse(p preferences.Preferences) PreferencesResponse {
	resp := PreferencesResponse{
		PreferredLocationName: p.PreferredLocationName,
		NotificationsEnabled:  p.NotificationsEnabled,
	}
	if p.CoordinatesAvailable {
		lat, lon := p.Latitude, p.Longitude
		resp.Latitude = &lat
		resp.Longitude = &lon
	}
	if p.LastNotificationUTCMillis > 0 {
		ts := NewTimestamp(timeFromMillis(p.LastNotificationUTCMillis))
		resp.LastNotificationAt = &ts
	}
	return resp
}

// UpdatePreferencesRequest is a partial preference update. Absent fields are
// left unchanged. Latitude and longitude must be given together, which
// CoordinatePairError checks since the tags cannot express it on pointers.
type UpdatePreferencesRequest struct {
	PreferredLocationName *string  `json:"preferredLocationName" validate:"omitempty,min=1,max=200"`
	Latitude              *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude             *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	NotificationsEnabled  *bool    `json:"notificationsEnabled"`
	ClearCoordinates      bool     `json:"clearCoordinates" validate:"excluded_with=Latitude"`
}

// CoordinatePairError returns the field that is missing its partner, or nil.
func (r UpdatePreferencesRequest) CoordinatePairError() *FieldError {
	switch {
	case r.Latitude != nil && r.Longitude == nil:
		return &FieldError{Field: "longitude", Message: "required when latitude is set", Code: "required_with"}
	case r.Longitude != nil && r.Latitude == nil:
		return &FieldError{Field: "latitude", Message: "required when longitude is set", Code: "required_with"}
	}
	return nil
}

// ToUpdate converts the request into a store update.
func (r UpdatePreferencesRequest) ToUpdate() preferences.Update {
	return preferences.Update{
		PreferredLocationName: r.PreferredLocationName,
		NotificationsEnabled:  r.NotificationsEnabled,
		Latitude:              r.Latitude,
		Longitude:             r.Longitude,
		ClearCoordinates:      r.ClearCoordinates,
	}
}
