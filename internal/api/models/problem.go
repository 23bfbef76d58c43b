package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, written as application/problem+json.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is one rejected field of a preferences update.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URNs.
const (
	ProblemTypeValidation           = "urn:forecastsync:problem:validation-error"
	ProblemTypeNotFound             = "urn:forecastsync:problem:not-found"
	ProblemTypeConflict             = "urn:forecastsync:problem:conflict"
	ProblemTypeUnsupportedMediaType = "urn:forecastsync:problem:unsupported-media-type"
	ProblemTypeTooManyRequests      = "urn:forecastsync:problem:too-many-requests"
	ProblemTypeInternal             = "urn:forecastsync:problem:internal-error"
	ProblemTypeUnavailable          = "urn:forecastsync:problem:service-unavailable"
)

var problemTypes = map[int]struct{ urn, title string }{
	http.StatusBadRequest:           {ProblemTypeValidation, "Validation error"},
	http.StatusNotFound:             {ProblemTypeNotFound, "Not found"},
	http.StatusConflict:             {ProblemTypeConflict, "Conflict"},
	http.StatusUnsupportedMediaType: {ProblemTypeUnsupportedMediaType, "Unsupported media type"},
	http.StatusTooManyRequests:      {ProblemTypeTooManyRequests, "Too many requests"},
	http.StatusInternalServerError:  {ProblemTypeInternal, "Internal server error"},
	http.StatusServiceUnavailable:   {ProblemTypeUnavailable, "Service unavailable"},
}

// NewProblem creates a Problem with an explicit type and title.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

// ProblemFor creates a Problem for one of the statuses the API returns. Other
// statuses get "about:blank" and the standard status text.
func ProblemFor(status int, traceID, detail string) *Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt.urn, pt.title = "about:blank", http.StatusText(status)
	}
	return NewProblem(pt.urn, pt.title, status, traceID).WithDetail(detail)
}

// WithDetail sets the occurrence-specific explanation.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the request path the problem occurred on.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches field validation errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write sends the problem. X-Request-Id is echoed when a trace id is known.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		w.Header().Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 validation problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	return ProblemFor(http.StatusBadRequest, traceID, detail).WithErrors(errors)
}

func NewNotFound(traceID, detail string) *Problem {
	return ProblemFor(http.StatusNotFound, traceID, detail)
}

// NewConflict is returned when a sync cycle is already in progress.
func NewConflict(traceID, detail string) *Problem {
	return ProblemFor(http.StatusConflict, traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return ProblemFor(http.StatusUnsupportedMediaType, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return ProblemFor(http.StatusTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return ProblemFor(http.StatusInternalServerError, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return ProblemFor(http.StatusServiceUnavailable, traceID, detail)
}
