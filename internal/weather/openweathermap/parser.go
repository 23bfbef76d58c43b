// Package openweathermap decodes OpenWeatherMap forecast payloads into
// forecast records.
package openweathermap

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// ProviderName identifies this weather provider.
const ProviderName = "openweathermap"

// ParseForecast decodes a forecast payload.
//
// Each entry of the "list" array becomes one record. Timestamps are derived
// from the array position, starting at the UTC day containing now; the
// per-entry "dt" field is ignored. A non-success "cod" returns a
// *weather.ProviderError (matched by weather.IsNoData). A payload that does not
// have the expected shape returns a *weather.ParseError and no records.
func ParseForecast(raw []byte, now time.Time) (*weather.ForecastBatch, error) {
	if err := weather.CheckMessageCode(raw); err != nil {
		return nil, err
	}

	var resp forecastResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, weather.DecodeError(err)
	}

	if resp.List == nil {
		return nil, weather.MissingField("list")
	}
	if resp.City == nil {
		return nil, weather.MissingField("city")
	}
	if resp.City.Coord == nil {
		return nil, weather.MissingField("city.coord")
	}
	if resp.City.Coord.Lat == nil {
		return nil, weather.MissingField("city.coord.lat")
	}
	if resp.City.Coord.Lon == nil {
		return nil, weather.MissingField("city.coord.lon")
	}

	start := weather.StartOfDayUTC(now)
	days := *resp.List
	batch := &weather.ForecastBatch{
		Records:   make([]weather.ForecastRecord, 0, len(days)),
		Latitude:  *resp.City.Coord.Lat,
		Longitude: *resp.City.Coord.Lon,
	}

	for i, day := range days {
		record, err := day.toRecord(i)
		if err != nil {
			return nil, err
		}
		record.TimestampUTCMillis = start + int64(i)*weather.DayMillis
		batch.Records = append(batch.Records, record)
	}

	return batch, nil
}

func (d *forecastDay) toRecord(i int) (weather.ForecastRecord, error) {
	if d == nil {
		return weather.ForecastRecord{}, weather.MissingField(fmt.Sprintf("list[%d]", i))
	}
	field := func(name string) error {
		return weather.MissingField(fmt.Sprintf("list[%d].%s", i, name))
	}

	switch {
	case d.Main == nil:
		return weather.ForecastRecord{}, field("main")
	case d.Main.Pressure == nil:
		return weather.ForecastRecord{}, field("main.pressure")
	case d.Main.Humidity == nil:
		return weather.ForecastRecord{}, field("main.humidity")
	case d.Main.TempMax == nil:
		return weather.ForecastRecord{}, field("main.temp_max")
	case d.Main.TempMin == nil:
		return weather.ForecastRecord{}, field("main.temp_min")
	case d.Wind == nil:
		return weather.ForecastRecord{}, field("wind")
	case d.Wind.Speed == nil:
		return weather.ForecastRecord{}, field("wind.speed")
	case d.Wind.Deg == nil:
		return weather.ForecastRecord{}, field("wind.deg")
	case len(d.Weather) == 0:
		return weather.ForecastRecord{}, field("weather[0]")
	case d.Weather[0].ID == nil:
		return weather.ForecastRecord{}, field("weather[0].id")
	}

	return weather.ForecastRecord{
		HumidityPercent:  int(*d.Main.Humidity),
		PressureHPa:      *d.Main.Pressure,
		WindSpeedMPS:     *d.Wind.Speed,
		WindDirectionDeg: *d.Wind.Deg,
		MaxTempC:         *d.Main.TempMax,
		MinTempC:         *d.Main.TempMin,
		ConditionCode:    *d.Weather[0].ID,
	}, nil
}

// OpenWeatherMap forecast response structures. Pointers distinguish absent
// fields from zero values.

type forecastResponse struct {
	City *struct {
		Coord *struct {
			Lat *float64 `json:"lat"`
			Lon *float64 `json:"lon"`
		} `json:"coord"`
	} `json:"city"`
	List *[]*forecastDay `json:"list"`
}

type forecastDay struct {
	Main *struct {
		Pressure *float64 `json:"pressure"`
		Humidity *float64 `json:"humidity"`
		TempMax  *float64 `json:"temp_max"`
		TempMin  *float64 `json:"temp_min"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Weather []struct {
		ID *int `json:"id"`
	} `json:"weather"`
}
