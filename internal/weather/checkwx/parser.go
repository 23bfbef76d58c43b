// Package checkwx decodes CheckWX METAR payloads.
package checkwx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// ProviderName identifies this aviation weather provider.
const ProviderName = "checkwx"

// ParseMetar decodes a decoded-METAR payload into the current observation.
//
// Only the first element of "data" is read. All values are returned in the
// provider's own formatting; numbers are kept as their JSON literal. A
// non-success "cod" returns a *weather.ProviderError; a payload of the wrong
// shape returns a *weather.ParseError.
func ParseMetar(raw []byte, now time.Time) (*weather.AviationRecord, error) {
	if err := weather.CheckMessageCode(raw); err != nil {
		return nil, err
	}

	var resp metarResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, weather.DecodeError(err)
	}

	if resp.Data == nil {
		return nil, weather.MissingField("data")
	}
	if len(*resp.Data) == 0 || (*resp.Data)[0] == nil {
		return nil, weather.MissingField("data[0]")
	}
	obs := (*resp.Data)[0]

	if err := obs.validate(); err != nil {
		return nil, err
	}

	record := &weather.AviationRecord{
		RawText:          string(*obs.RawText),
		ConditionsCode:   string(*obs.Conditions.Code),
		ConditionsText:   string(*obs.Conditions.Text),
		DewpointC:        string(*obs.Dewpoint.Celsius),
		DewpointF:        string(*obs.Dewpoint.Fahrenheit),
		FlightCategory:   string(*obs.FlightCategory),
		VisibilityMiles:  string(*obs.Visibility.Miles),
		VisibilityMeters: string(*obs.Visibility.Meters),
		Clouds:           make([]weather.CloudLayer, 0, len(*obs.Clouds)),
		ObservedAt:       now.UTC(),
	}

	for _, c := range *obs.Clouds {
		record.Clouds = append(record.Clouds, weather.CloudLayer{
			Code:          string(*c.Code),
			Text:          string(*c.Text),
			BaseFeetAGL:   string(*c.BaseFeetAGL),
			BaseMetersAGL: string(*c.BaseMetersAGL),
		})
	}

	return record, nil
}

func (o *observation) validate() error {
	required := []struct {
		field string
		ok    bool
	}{
		{"data[0].raw_text", o.RawText != nil},
		{"data[0].clouds", o.Clouds != nil},
		{"data[0].conditions", o.Conditions != nil},
		{"data[0].dewpoint", o.Dewpoint != nil},
		{"data[0].flight_category", o.FlightCategory != nil},
		{"data[0].visibility", o.Visibility != nil},
	}
	for _, r := range required {
		if !r.ok {
			return weather.MissingField(r.field)
		}
	}

	nested := []struct {
		field string
		ok    bool
	}{
		{"data[0].conditions.code", o.Conditions.Code != nil},
		{"data[0].conditions.text", o.Conditions.Text != nil},
		{"data[0].dewpoint.celsius", o.Dewpoint.Celsius != nil},
		{"data[0].dewpoint.fahrenheit", o.Dewpoint.Fahrenheit != nil},
		{"data[0].visibility.miles", o.Visibility.Miles != nil},
		{"data[0].visibility.meters", o.Visibility.Meters != nil},
	}
	for _, r := range nested {
		if !r.ok {
			return weather.MissingField(r.field)
		}
	}

	for i, c := range *o.Clouds {
		prefix := fmt.Sprintf("data[0].clouds[%d]", i)
		switch {
		case c == nil:
			return weather.MissingField(prefix)
		case c.Code == nil:
			return weather.MissingField(prefix + ".code")
		case c.Text == nil:
			return weather.MissingField(prefix + ".text")
		case c.BaseFeetAGL == nil:
			return weather.MissingField(prefix + ".base_feet_agl")
		case c.BaseMetersAGL == nil:
			return weather.MissingField(prefix + ".base_meters_agl")
		}
	}

	return nil
}

// text is a provider value kept verbatim. CheckWX sends some values as
// strings and others as numbers depending on the station, so both are
// accepted; objects, arrays and null are not.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	case '{', '[', 'n':
		return fmt.Errorf("expected string or number, got %s", b)
	default:
		*t = text(b)
		return nil
	}
}

// CheckWX decoded METAR response structures.

type metarResponse struct {
	Data *[]*observation `json:"data"`
}

type observation struct {
	RawText *text `json:"raw_text"`
	Clouds  *[]*struct {
		Code          *text `json:"code"`
		Text          *text `json:"text"`
		BaseFeetAGL   *text `json:"base_feet_agl"`
		BaseMetersAGL *text `json:"base_meters_agl"`
	} `json:"clouds"`
	Conditions *struct {
		Code *text `json:"code"`
		Text *text `json:"text"`
	} `json:"conditions"`
	Dewpoint *struct {
		Celsius    *text `json:"celsius"`
		Fahrenheit *text `json:"fahrenheit"`
	} `json:"dewpoint"`
	FlightCategory *text `json:"flight_category"`
	Visibility     *struct {
		Miles  *text `json:"miles"`
		Meters *text `json:"meters"`
	} `json:"visibility"`
}
