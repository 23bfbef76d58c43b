package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/forecastsync/forecastsync/internal/api/models"
	"github.com/forecastsync/forecastsync/internal/api/response"
	"github.com/forecastsync/forecastsync/internal/syncer"
	"github.com/forecastsync/forecastsync/internal/worker"
)

// SyncTrigger runs one sync cycle on demand. *worker.SyncJob satisfies it.
type SyncTrigger interface {
	Run(ctx context.Context, trigger string) (*syncer.CycleResult, error)
}

// SyncJob is a SyncTrigger that also reports its counters.
type SyncJob interface {
	SyncTrigger
	JobStats
}

// SyncHandler triggers sync cycles over HTTP.
type SyncHandler struct {
	job SyncTrigger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(job SyncTrigger) *SyncHandler {
	return &SyncHandler{job: job}
}

// Trigger handles POST /v1/sync. The cycle runs in the request and its summary
// is returned whatever the outcome; a cycle that is already running yields 409.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.job.Run(r.Context(), worker.TriggerAPI)
	if errors.Is(err, syncer.ErrCycleInProgress) {
		response.Conflict(w, r, "a sync cycle is already in progress")
		return
	}
	if result == nil {
		response.InternalError(w, r, "sync cycle did not run")
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewCycleSummary(result))
}
