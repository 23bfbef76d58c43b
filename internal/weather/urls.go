package weather

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultForecastBaseURL is the OpenWeatherMap 5 day forecast endpoint.
	DefaultForecastBaseURL = "https://api.openweathermap.org/data/2.5/forecast"

	// DefaultMetarBaseURL is the CheckWX METAR endpoint.
	DefaultMetarBaseURL = "https://api.checkwx.com/metar"

	// DefaultTAFBaseURL is the CheckWX TAF endpoint.
	DefaultTAFBaseURL = "https://api.checkwx.com/taf"

	// DefaultDayCount is the number of forecast days requested.
	DefaultDayCount = 5
)

// Endpoints is the static provider configuration. It is copied into the
// URLBuilder at construction and never changes afterwards.
type Endpoints struct {
	ForecastBaseURL string
	MetarBaseURL    string
	TAFBaseURL      string

	// ForecastAPIKey is sent as the APPID query parameter when set.
	ForecastAPIKey string

	// AviationAPIKey is sent in the X-API-Key header of METAR/TAF requests.
	AviationAPIKey string

	// DayCount is the cnt query parameter. Default: 5
	DayCount int
}

// DefaultEndpoints returns the production endpoints without API keys.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		ForecastBaseURL: DefaultForecastBaseURL,
		MetarBaseURL:    DefaultMetarBaseURL,
		TAFBaseURL:      DefaultTAFBaseURL,
		DayCount:        DefaultDayCount,
	}
}

// URLBuilder builds provider request URLs for a Selector.
type URLBuilder struct {
	forecast *url.URL
	metar    *url.URL
	taf      *url.URL
	apiKey   string
	aviation string
	dayCount int
}

// NewURLBuilder validates the base URLs and returns a builder. Empty base URLs
// fall back to the defaults.
func NewURLBuilder(e Endpoints) (*URLBuilder, error) {
	defaults := DefaultEndpoints()
	if e.ForecastBaseURL == "" {
		e.ForecastBaseURL = defaults.ForecastBaseURL
	}
	if e.MetarBaseURL == "" {
		e.MetarBaseURL = defaults.MetarBaseURL
	}
	if e.TAFBaseURL == "" {
		e.TAFBaseURL = defaults.TAFBaseURL
	}
	if e.DayCount <= 0 {
		e.DayCount = defaults.DayCount
	}

	forecast, err := parseBase("forecast", e.ForecastBaseURL)
	if err != nil {
		return nil, err
	}
	metar, err := parseBase("metar", e.MetarBaseURL)
	if err != nil {
		return nil, err
	}
	taf, err := parseBase("taf", e.TAFBaseURL)
	if err != nil {
		return nil, err
	}

	return &URLBuilder{
		forecast: forecast,
		metar:    metar,
		taf:      taf,
		apiKey:   e.ForecastAPIKey,
		aviation: e.AviationAPIKey,
		dayCount: e.DayCount,
	}, nil
}

// MustNewURLBuilder is like NewURLBuilder but panics on invalid configuration.
func MustNewURLBuilder(e Endpoints) *URLBuilder {
	b, err := NewURLBuilder(e)
	if err != nil {
		panic(err)
	}
	return b
}

func parseBase(name, raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s base URL: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s base URL %q: scheme and host required", name, raw)
	}
	return u, nil
}

// ForecastURL returns the general forecast URL for the selector.
func (b *URLBuilder) ForecastURL(sel Selector) string {
	u := *b.forecast
	q := u.Query()
	if b.apiKey != "" {
		q.Set("APPID", b.apiKey)
	}
	if sel.IsCoordinates() {
		lat, lon := sel.Coordinates()
		q.Set("lat", formatCoordinate(lat))
		q.Set("lon", formatCoordinate(lon))
	} else {
		q.Set("q", sel.Name())
	}
	q.Set("mode", "json")
	q.Set("units", "metric")
	q.Set("cnt", strconv.Itoa(b.dayCount))
	u.RawQuery = q.Encode()
	return u.String()
}

// MetarURL returns the decoded METAR URL. Aviation endpoints only accept
// coordinates, so ok is false for name selectors.
func (b *URLBuilder) MetarURL(sel Selector) (string, bool) {
	return b.aviationURL(b.metar, sel)
}

// TAFURL returns the decoded TAF URL. ok is false for name selectors.
func (b *URLBuilder) TAFURL(sel Selector) (string, bool) {
	return b.aviationURL(b.taf, sel)
}

// AviationHeaders returns the headers for METAR/TAF requests.
func (b *URLBuilder) AviationHeaders() map[string]string {
	if b.aviation == "" {
		return nil
	}
	return map[string]string{"X-API-Key": b.aviation}
}

func (b *URLBuilder) aviationURL(base *url.URL, sel Selector) (string, bool) {
	if !sel.IsCoordinates() {
		return "", false
	}
	lat, lon := sel.Coordinates()
	u := base.JoinPath("lat", formatCoordinate(lat), "lon", formatCoordinate(lon), "decoded")
	return u.String(), true
}

// formatCoordinate renders a coordinate in its shortest decimal form, always
// with a fractional part ("37.0", "-122.1").
func formatCoordinate(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
