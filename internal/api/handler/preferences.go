package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/forecastsync/forecastsync/internal/api/models"
	"github.com/forecastsync/forecastsync/internal/api/response"
	"github.com/forecastsync/forecastsync/internal/preferences"
)

const maxPreferencesBody = 16 << 10

// validate reports field errors by their JSON names.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// PreferencesHandler reads and updates the sync preferences.
type PreferencesHandler struct {
	store  preferences.Store
	logger zerolog.Logger
}

// NewPreferencesHandler creates a new PreferencesHandler.
func NewPreferencesHandler(store preferences.Store, logger zerolog.Logger) *PreferencesHandler {
	return &PreferencesHandler{store: store, logger: logger}
}

// Get handles GET /v1/preferences.
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.store.Snapshot(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read preferences")
		response.InternalError(w, r, "failed to read preferences")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewPreferencesResponse(prefs))
}

// Update handles PUT /v1/preferences. The next sync cycle picks up the change.
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdatePreferencesRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPreferencesBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body: "+err.Error(), nil)
		return
	}

	if fieldErrs := validationErrors(validate.Struct(req)); len(fieldErrs) > 0 {
		response.BadRequest(w, r, "request validation failed", fieldErrs)
		return
	}
	if fe := req.CoordinatePairError(); fe != nil {
		response.BadRequest(w, r, "request validation failed", []models.FieldError{*fe})
		return
	}

	prefs, err := h.store.Update(r.Context(), req.ToUpdate())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to update preferences")
		response.InternalError(w, r, "failed to update preferences")
		return
	}

	h.logger.Info().
		Str("location", prefs.PreferredLocationName).
		Bool("coordinates", prefs.CoordinatesAvailable).
		Bool("notifications", prefs.NotificationsEnabled).
		Msg("preferences updated")

	response.JSON(w, r, http.StatusOK, models.NewPreferencesResponse(prefs))
}

func validationErrors(err error) []models.FieldError {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []models.FieldError{{Message: err.Error()}}
	}
	out := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, models.FieldError{
			Field:   fe.Field(),
			Message: validationMessage(fe),
			Code:    fe.Tag(),
		})
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must not be empty"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "excluded_with":
		return "cannot be combined with " + strings.ToLower(fe.Param())
	}
	return "is invalid"
}
