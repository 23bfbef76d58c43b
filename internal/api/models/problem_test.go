package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastsync/forecastsync/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_1").
		WithDetail("latitude out of range").
		WithInstance("/v1/preferences").
		WithErrors([]models.FieldError{{Field: "latitude", Message: "must be between -90 and 90", Code: "gte"}})

	assert.Equal(t, "latitude out of range", p.Detail)
	assert.Equal(t, "/v1/preferences", p.Instance)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "latitude", p.Errors[0].Field)
}

func TestProblem_Write(t *testing.T) {
	p := models.NewBadRequest("req_1", "invalid body", []models.FieldError{{Field: "longitude", Message: "required"}})
	p.Instance = "/v1/preferences"

	w := httptest.NewRecorder()
	p.Write(w)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_1", w.Header().Get("X-Request-Id"))

	var got models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.ProblemTypeValidation, got.Type)
	assert.Equal(t, "invalid body", got.Detail)
	assert.Equal(t, "/v1/preferences", got.Instance)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "longitude", got.Errors[0].Field)
}

func TestProblem_WriteWithoutTraceID(t *testing.T) {
	w := httptest.NewRecorder()
	models.NewNotFound("", "nothing here").Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("X-Request-Id"))
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		name     string
		problem  *models.Problem
		wantType string
		title    string
		status   int
	}{
		{"bad request", models.NewBadRequest("req", "d", nil), models.ProblemTypeValidation, "Validation error", http.StatusBadRequest},
		{"not found", models.NewNotFound("req", "d"), models.ProblemTypeNotFound, "Not found", http.StatusNotFound},
		{"conflict", models.NewConflict("req", "d"), models.ProblemTypeConflict, "Conflict", http.StatusConflict},
		{"unsupported media type", models.NewUnsupportedMediaType("req", "d"), models.ProblemTypeUnsupportedMediaType, "Unsupported media type", http.StatusUnsupportedMediaType},
		{"too many requests", models.NewTooManyRequests("req", "d"), models.ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests},
		{"internal", models.NewInternalError("req", "d"), models.ProblemTypeInternal, "Internal server error", http.StatusInternalServerError},
		{"unavailable", models.NewServiceUnavailable("req", "d"), models.ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.problem.Type)
			assert.Equal(t, tt.title, tt.problem.Title)
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, "d", tt.problem.Detail)
			assert.Equal(t, "req", tt.problem.TraceID)
		})
	}
}

func TestProblemFor_UnknownStatus(t *testing.T) {
	p := models.ProblemFor(http.StatusBadGateway, "req", "upstream")

	assert.Equal(t, "about:blank", p.Type)
	assert.Equal(t, "Bad Gateway", p.Title)
	assert.Equal(t, http.StatusBadGateway, p.Status)
}

func TestTimestamp_JSON(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	ts := models.Timestamp(time.Date(2024, 6, 1, 14, 0, 0, 0, loc))

	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-06-01T12:00:00Z"`, string(raw))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Time().Equal(ts.Time()))

	var null models.Timestamp
	require.NoError(t, json.Unmarshal([]byte("null"), &null))
	assert.True(t, null.Time().IsZero())
}

func TestTimestampPtr(t *testing.T) {
	assert.Nil(t, models.TimestampPtr(nil))

	zero := time.Time{}
	assert.Nil(t, models.TimestampPtr(&zero))

	now := time.Now()
	got := models.TimestampPtr(&now)
	require.NotNil(t, got)
	assert.True(t, got.Time().Equal(now))
}
