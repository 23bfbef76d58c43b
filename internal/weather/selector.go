package weather

import "fmt"

// Selector is the resolved request target: either a location name or a
// coordinate pair. The zero value is an empty name selector.
type Selector struct {
	name   string
	lat    float64
	lon    float64
	coords bool
}

// ByName returns a selector for a named location.
func ByName(name string) Selector {
	return Selector{name: name}
}

// ByCoordinates returns a selector for a latitude/longitude pair.
func ByCoordinates(lat, lon float64) Selector {
	return Selector{lat: lat, lon: lon, coords: true}
}

// IsCoordinates reports whether the selector is coordinate based.
func (s Selector) IsCoordinates() bool {
	return s.coords
}

// Name returns the location name. Empty for coordinate selectors.
func (s Selector) Name() string {
	return s.name
}

// Coordinates returns the latitude and longitude. Zero for name selectors.
func (s Selector) Coordinates() (lat, lon float64) {
	return s.lat, s.lon
}

func (s Selector) String() string {
	if s.coords {
		return fmt.Sprintf("coords(%g,%g)", s.lat, s.lon)
	}
	return fmt.Sprintf("name(%q)", s.name)
}
