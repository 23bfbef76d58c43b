// Package handler provides HTTP handlers for the forecast sync ops API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/forecastsync/forecastsync/internal/api/models"
	"github.com/forecastsync/forecastsync/internal/api/response"
	"github.com/forecastsync/forecastsync/internal/provider/resilience"
	"github.com/forecastsync/forecastsync/internal/syncer"
)

const readinessTimeout = 2 * time.Second

// Pinger checks a backing store. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CycleSource exposes the orchestrator's state.
type CycleSource interface {
	Running() bool
	LastResult() *syncer.CycleResult
}

// JobStats exposes sync job counters.
type JobStats interface {
	MetricsSnapshot() map[string]interface{}
}

// Schedule exposes the next scheduled run.
type Schedule interface {
	NextRun() time.Time
}

// OpsConfig configures the ops endpoints. Nil fields are reported as
// disabled subsystems.
type OpsConfig struct {
	Version   string
	BuildTime string

	DB        Pinger
	Providers *resilience.Registry
	Cycles    CycleSource
	Jobs      JobStats
	Schedule  Schedule

	PubSubEnabled bool

	Now func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(h.cfg.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. The worker is ready when its
// database answers; in-memory deployments are always ready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.NewTimestamp(h.cfg.Now()),
	}

	if err := h.pingDB(r.Context()); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"database": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem, provider and sync status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:  models.HealthStatusOK,
		Time:    models.NewTimestamp(h.cfg.Now()),
		Version: h.cfg.Version,
	}

	status.Subsystems = append(status.Subsystems, h.databaseStatus(r.Context()))
	status.Subsystems = append(status.Subsystems, h.schedulerStatus())
	status.Subsystems = append(status.Subsystems, h.pubSubStatus())

	for _, sub := range status.Subsystems {
		if sub.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, sub.Name+"_unavailable")
		}
	}

	if h.cfg.Providers != nil {
		for _, ph := range h.cfg.Providers.GetAllHealth() {
			ps := providerStatus(ph)
			if ps.Status != models.HealthStatusOK {
				status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, ph.Name+"_circuit_"+ps.CircuitState)
				status.Status = worst(status.Status, models.HealthStatusDegraded)
			}
			status.Providers = append(status.Providers, ps)
		}
	}
	if status.Providers == nil {
		status.Providers = []models.ProviderStatus{}
	}

	if h.cfg.Cycles != nil {
		st := &models.SyncStatus{
			Running:   h.cfg.Cycles.Running(),
			LastCycle: models.NewCycleSummary(h.cfg.Cycles.LastResult()),
		}
		if h.cfg.Schedule != nil {
			next := h.cfg.Schedule.NextRun()
			st.NextRunAt = models.TimestampPtr(&next)
		}
		if h.cfg.Jobs != nil {
			st.JobMetrics = h.cfg.Jobs.MetricsSnapshot()
		}
		if st.LastCycle != nil && st.LastCycle.Outcome == string(syncer.OutcomeFailed) {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, "last_sync_failed")
			status.Status = worst(status.Status, models.HealthStatusDegraded)
		}
		status.Sync = st
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingDB(ctx context.Context) error {
	if h.cfg.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()
	return h.cfg.DB.Ping(ctx)
}

func (h *OpsHandler) databaseStatus(ctx context.Context) models.SubsystemStatus {
	if h.cfg.DB == nil {
		return subsystem("database", models.HealthStatusOK, "in-memory store")
	}
	if err := h.pingDB(ctx); err != nil {
		return subsystem("database", models.HealthStatusFail, err.Error())
	}
	return subsystem("database", models.HealthStatusOK, "postgres")
}

func (h *OpsHandler) schedulerStatus() models.SubsystemStatus {
	if h.cfg.Schedule == nil {
		return subsystem("scheduler", models.HealthStatusOK, "disabled")
	}
	next := h.cfg.Schedule.NextRun()
	if next.IsZero() {
		return subsystem("scheduler", models.HealthStatusOK, "not started")
	}
	return subsystem("scheduler", models.HealthStatusOK, "next run "+next.UTC().Format(time.RFC3339))
}

func (h *OpsHandler) pubSubStatus() models.SubsystemStatus {
	if !h.cfg.PubSubEnabled {
		return subsystem("pubsub", models.HealthStatusOK, "disabled")
	}
	return subsystem("pubsub", models.HealthStatusOK, "subscribed")
}

func subsystem(name string, status models.HealthStatus, detail string) models.SubsystemStatus {
	return models.SubsystemStatus{Name: name, Status: status, Detail: &detail}
}

func providerStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:      ph.Name,
		Status:        models.HealthStatusOK,
		CircuitState:  ph.CircuitState.String(),
		Successes:     ph.Successes,
		Failures:      ph.Failures,
		LastSuccessAt: models.TimestampPtr(ph.LastSuccessAt),
		LastFailureAt: models.TimestampPtr(ph.LastFailureAt),
	}

	if ph.Successes+ph.Failures > 0 {
		ms := ph.LastLatency.Milliseconds()
		ps.LastLatencyMS = &ms
	}

	switch {
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	case !ph.IsHealthy():
		ps.Status = models.HealthStatusFail
	}

	if ph.LastError != "" {
		msg := ph.LastError
		if ph.Counts.ConsecutiveFailures > 0 {
			msg = fmt.Sprintf("%s (%d consecutive failures)", msg, ph.Counts.ConsecutiveFailures)
		}
		ps.Message = &msg
	}
	return ps
}

// worst returns the more severe of two statuses.
func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
