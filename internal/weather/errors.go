package weather

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoData is matched by every ProviderError. The provider answered, but has no
// data for the request.
var ErrNoData = errors.New("no weather data available")

// NetworkError is returned when a provider could not be reached or did not
// return a readable body.
type NetworkError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is returned when a payload does not have the expected shape.
type ParseError struct {
	// Field is the JSON path of the offending field, if known.
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("parsing payload: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("parsing payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ProviderError carries a non-success "cod" reported inside a payload.
type ProviderError struct {
	Code     int
	NotFound bool
}

// NewProviderError builds a ProviderError for the given message code.
func NewProviderError(code int) *ProviderError {
	return &ProviderError{Code: code, NotFound: code == http.StatusNotFound}
}

func (e *ProviderError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("provider reported location not found (cod %d)", e.Code)
	}
	return fmt.Sprintf("provider reported error (cod %d)", e.Code)
}

// Is makes errors.Is(err, ErrNoData) true for every ProviderError.
func (e *ProviderError) Is(target error) bool {
	return target == ErrNoData
}

// StoreError is returned when the forecast store could not be replaced.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNoData reports whether err is the "no data available" outcome.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData)
}
