// Package weather holds the normalized forecast and aviation records produced by a sync cycle,
// the request selector and the provider URL builder.
package weather

import (
	"time"
)

// DayMillis is the length of one forecast day in milliseconds.
const DayMillis int64 = 24 * 60 * 60 * 1000

// ForecastRecord is one forecast day as stored in the forecast table.
type ForecastRecord struct {
	// TimestampUTCMillis is the start of the forecast day in UTC, derived from the
	// position of the day in the payload rather than from the payload itself.
	TimestampUTCMillis int64 `json:"timestampUtcMillis"`

	HumidityPercent  int     `json:"humidityPercent"`
	PressureHPa      float64 `json:"pressureHpa"`
	WindSpeedMPS     float64 `json:"windSpeedMps"`
	WindDirectionDeg float64 `json:"windDirectionDeg"`
	MaxTempC         float64 `json:"maxTempC"`
	MinTempC         float64 `json:"minTempC"`

	// ConditionCode is the provider weather-condition identifier (e.g. 800 for clear sky).
	ConditionCode int `json:"conditionCode"`
}

// Day returns the forecast day as a UTC time.
func (r ForecastRecord) Day() time.Time {
	return time.UnixMilli(r.TimestampUTCMillis).UTC()
}

// ForecastBatch is the result of parsing one forecast payload.
type ForecastBatch struct {
	Records []ForecastRecord

	// City coordinates reported by the provider. The sync cycle stores them as the
	// preferred coordinates.
	Latitude  float64
	Longitude float64
}

// CloudLayer is one cloud layer of a METAR observation.
type CloudLayer struct {
	Code          string `json:"code"`
	Text          string `json:"text"`
	BaseFeetAGL   string `json:"baseFeetAgl"`
	BaseMetersAGL string `json:"baseMetersAgl"`
}

// AviationRecord is a decoded METAR observation. Values are kept exactly as the
// provider formatted them.
type AviationRecord struct {
	RawText          string       `json:"rawText"`
	ConditionsCode   string       `json:"conditionsCode"`
	ConditionsText   string       `json:"conditionsText"`
	DewpointC        string       `json:"dewpointC"`
	DewpointF        string       `json:"dewpointF"`
	FlightCategory   string       `json:"flightCategory"`
	VisibilityMiles  string       `json:"visibilityMiles"`
	VisibilityMeters string       `json:"visibilityMeters"`
	Clouds           []CloudLayer `json:"clouds"`

	// ObservedAt is when the record was fetched.
	ObservedAt time.Time `json:"observedAt"`
}

// StartOfDayUTC returns the start of the UTC day containing t, in milliseconds.
func StartOfDayUTC(t time.Time) int64 {
	ms := t.UnixMilli()
	start := ms - ms%DayMillis
	if ms%DayMillis < 0 {
		start -= DayMillis
	}
	return start
}
