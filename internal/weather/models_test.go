package weather_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/forecastsync/forecastsync/internal/weather"
)

func TestStartOfDayUTC(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		expected time.Time
	}{
		{
			name:     "midday",
			now:      time.Date(2024, 3, 15, 13, 45, 12, 0, time.UTC),
			expected: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "exact midnight",
			now:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "last millisecond of day",
			now:      time.Date(2024, 3, 15, 23, 59, 59, int(999*time.Millisecond), time.UTC),
			expected: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "non-UTC zone uses the UTC day",
			now:      time.Date(2024, 3, 15, 1, 0, 0, 0, time.FixedZone("CEST", 2*60*60)),
			expected: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "before epoch",
			now:      time.Date(1969, 12, 31, 18, 0, 0, 0, time.UTC),
			expected: time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected.UnixMilli(), weather.StartOfDayUTC(tt.now))
		})
	}
}

func TestForecastRecord_Day(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	r := weather.ForecastRecord{TimestampUTCMillis: day.UnixMilli()}

	assert.True(t, day.Equal(r.Day()))
	assert.Equal(t, time.UTC, r.Day().Location())
}

func TestSelector(t *testing.T) {
	byName := weather.ByName("Mountain View, US")
	assert.False(t, byName.IsCoordinates())
	assert.Equal(t, "Mountain View, US", byName.Name())

	byCoords := weather.ByCoordinates(37.4, -122.1)
	assert.True(t, byCoords.IsCoordinates())
	lat, lon := byCoords.Coordinates()
	assert.Equal(t, 37.4, lat)
	assert.Equal(t, -122.1, lon)
	assert.Empty(t, byCoords.Name())

	assert.Equal(t, "coords(37.4,-122.1)", byCoords.String())
	assert.Equal(t, `name("Mountain View, US")`, byName.String())
}
