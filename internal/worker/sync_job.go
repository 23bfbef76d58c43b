package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/forecastsync/forecastsync/internal/syncer"
)

// Trigger names recorded on each cycle.
const (
	TriggerSchedule = "schedule"
	TriggerPubSub   = "pubsub"
	TriggerAPI      = "api"
)

// Runner runs a sync cycle unless one is already in flight.
type Runner interface {
	TryRun(ctx context.Context, trigger string) (*syncer.CycleResult, error)
}

// SyncJob runs sync cycles for the scheduler, Pub/Sub and the API and keeps
// run statistics.
type SyncJob struct {
	runner  Runner
	logger  zerolog.Logger
	metrics *SyncMetrics
}

// SyncMetrics tracks sync job statistics.
type SyncMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns      int64
	SuccessfulRuns int64
	NoDataRuns     int64
	FailedRuns     int64
	SkippedRuns    int64
	Notifications  int64
	AviationErrors int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
	LastOutcome     syncer.Outcome
	LastError       string
}

// SyncJobConfig holds configuration for creating a SyncJob.
type SyncJobConfig struct {
	Runner Runner
	Logger zerolog.Logger
}

// NewSyncJob creates a new sync job.
func NewSyncJob(cfg SyncJobConfig) *SyncJob {
	return &SyncJob{
		runner:  cfg.Runner,
		logger:  cfg.Logger.With().Str("component", "sync_job").Logger(),
		metrics: &SyncMetrics{},
	}
}

// Run executes one cycle. A trigger that arrives while a cycle is running is
// dropped and syncer.ErrCycleInProgress is returned.
func (j *SyncJob) Run(ctx context.Context, trigger string) (*syncer.CycleResult, error) {
	result, err := j.runner.TryRun(ctx, trigger)
	if errors.Is(err, syncer.ErrCycleInProgress) {
		j.metrics.mu.Lock()
		j.metrics.SkippedRuns++
		j.metrics.mu.Unlock()

		j.logger.Info().Str("trigger", trigger).Msg("sync already in progress, trigger dropped")
		return nil, err
	}

	if result != nil {
		j.updateMetrics(result)
	}
	return result, err
}

func (j *SyncJob) updateMetrics(result *syncer.CycleResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	switch result.Outcome {
	case syncer.OutcomeSuccess:
		j.metrics.SuccessfulRuns++
	case syncer.OutcomeNoData:
		j.metrics.NoDataRuns++
	case syncer.OutcomeFailed:
		j.metrics.FailedRuns++
	}
	if result.Notified {
		j.metrics.Notifications++
	}
	if result.Aviation.Status == syncer.AviationFailed {
		j.metrics.AviationErrors++
	}
	j.metrics.LastRunAt = result.FinishedAt
	j.metrics.LastRunDuration = result.Duration()
	j.metrics.TotalDuration += result.Duration()
	j.metrics.LastOutcome = result.Outcome
	j.metrics.LastError = result.Error
}

// GetMetrics returns a copy of the current metrics.
func (j *SyncJob) GetMetrics() SyncMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return SyncMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		SuccessfulRuns:  j.metrics.SuccessfulRuns,
		NoDataRuns:      j.metrics.NoDataRuns,
		FailedRuns:      j.metrics.FailedRuns,
		SkippedRuns:     j.metrics.SkippedRuns,
		Notifications:   j.metrics.Notifications,
		AviationErrors:  j.metrics.AviationErrors,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
		LastOutcome:     j.metrics.LastOutcome,
		LastError:       j.metrics.LastError,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *SyncJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()

	avgDuration := time.Duration(0)
	if m.TotalRuns > 0 {
		avgDuration = m.TotalDuration / time.Duration(m.TotalRuns)
	}

	snapshot := map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"successful_runs":   m.SuccessfulRuns,
		"no_data_runs":      m.NoDataRuns,
		"failed_runs":       m.FailedRuns,
		"skipped_runs":      m.SkippedRuns,
		"notifications":     m.Notifications,
		"aviation_errors":   m.AviationErrors,
		"last_run_duration": m.LastRunDuration.String(),
		"avg_run_duration":  avgDuration.String(),
	}
	if !m.LastRunAt.IsZero() {
		snapshot["last_run_at"] = m.LastRunAt.UTC().Format(time.RFC3339)
		snapshot["last_outcome"] = string(m.LastOutcome)
	}
	if m.LastError != "" {
		snapshot["last_error"] = m.LastError
	}
	return snapshot
}
