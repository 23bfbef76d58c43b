package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/forecastsync/forecastsync/internal/syncer"
)

// SchedulerConfig holds configuration for the periodic sync.
type SchedulerConfig struct {
	Job      *SyncJob
	Interval time.Duration

	// RunOnStart runs the first cycle immediately instead of after one interval.
	RunOnStart bool

	Logger zerolog.Logger
}

// Scheduler triggers a sync cycle every Interval. A tick that fires while the
// previous cycle is still running is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	job       *SyncJob
	interval  time.Duration
	immediate bool
	logger    zerolog.Logger

	// ctx is canceled by Stop so an in-flight cycle aborts between states.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler in UTC.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		job:       cfg.Job,
		interval:  cfg.Interval,
		immediate: cfg.RunOnStart,
		logger:    cfg.Logger.With().Str("component", "scheduler").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the job and starts the scheduler in the background.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return fmt.Errorf("scheduler: invalid interval %s", s.interval)
	}

	sched := s.scheduler.Every(s.interval)
	if !s.immediate {
		sched = sched.WaitForSchedule()
	}
	if _, err := sched.Do(s.tick); err != nil {
		return fmt.Errorf("scheduler: scheduling sync: %w", err)
	}

	s.logger.Info().
		Dur("interval", s.interval).
		Bool("run_on_start", s.immediate).
		Msg("starting sync scheduler")

	s.scheduler.StartAsync()
	return nil
}

// Stop cancels the running cycle and stops future ticks.
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
	s.logger.Info().Msg("sync scheduler stopped")
}

// NextRun returns when the next scheduled cycle will start.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

func (s *Scheduler) tick() {
	result, err := s.job.Run(s.ctx, TriggerSchedule)
	switch {
	case errors.Is(err, syncer.ErrCycleInProgress):
		return
	case err != nil:
		s.logger.Warn().Err(err).Msg("scheduled sync failed")
	default:
		s.logger.Debug().
			Str("cycle_id", result.CycleID).
			Str("outcome", string(result.Outcome)).
			Time("next_run", s.NextRun()).
			Msg("scheduled sync finished")
	}
}
