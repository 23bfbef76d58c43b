package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/forecastsync/forecastsync/internal/api/models"
	"github.com/forecastsync/forecastsync/internal/api/response"
	"github.com/forecastsync/forecastsync/internal/forecaststore"
)

// ForecastHandler serves the stored forecast and the latest METAR observation.
type ForecastHandler struct {
	repo   forecaststore.Repository
	logger zerolog.Logger
}

// NewForecastHandler creates a new ForecastHandler.
func NewForecastHandler(repo forecaststore.Repository, logger zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{repo: repo, logger: logger}
}

// List handles GET /v1/forecast.
func (h *ForecastHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list forecast")
		response.InternalError(w, r, "failed to read forecast")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewForecastResponse(records))
}

// Aviation handles GET /v1/aviation.
func (h *ForecastHandler) Aviation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.LatestAviation(r.Context())
	if errors.Is(err, forecaststore.ErrNoAviation) {
		response.NotFound(w, r, "no aviation observation stored")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read aviation observation")
		response.InternalError(w, r, "failed to read aviation observation")
		return
	}
	response.JSON(w, r, http.StatusOK, rec)
}
