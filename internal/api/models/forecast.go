package models

import (
	"github.com/forecastsync/forecastsync/internal/weather"
)

// ForecastDay is one stored forecast day.
type ForecastDay struct {
	Day Timestamp `json:"day"`
	weather.ForecastRecord
}

// ForecastResponse lists the stored forecast days in day order.
type ForecastResponse struct {
	Days  []ForecastDay `json:"days"`
	Count int           `json:"count"`
}

// NewForecastResponse converts stored records.
func NewForecastResponse(records []weather.ForecastRecord) ForecastResponse {
	days := make([]ForecastDay, 0, len(records))
	for _, r := range records {
		days = append(days, ForecastDay{Day: NewTimestamp(r.Day()), ForecastRecord: r})
	}
	return ForecastResponse{Days: days, Count: len(days)}
}
