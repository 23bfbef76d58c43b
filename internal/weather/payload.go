package weather

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// CheckMessageCode inspects the optional top-level "cod" field shared by both
// providers. It returns a *ProviderError for any code other than 200 and a
// *ParseError when the payload is not a JSON object or the code is not numeric.
func CheckMessageCode(raw []byte) error {
	var envelope struct {
		Cod json.RawMessage `json:"cod"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return DecodeError(err)
	}

	s := strings.TrimSpace(string(envelope.Cod))
	if s == "" || s == "null" {
		return nil
	}
	// OpenWeatherMap sends the code as a number or as a numeric string.
	s = strings.Trim(s, `"`)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &ParseError{Field: "cod", Err: fmt.Errorf("not a number: %q", s)}
	}
	if code := int(f); code != http.StatusOK {
		return NewProviderError(code)
	}
	return nil
}

// MissingField returns a ParseError for an absent required field.
func MissingField(field string) error {
	return &ParseError{Field: field, Err: errors.New("missing required field")}
}

// DecodeError converts an encoding/json error into a ParseError.
func DecodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ParseError{Field: typeErr.Field, Err: err}
	}
	return &ParseError{Err: err}
}
