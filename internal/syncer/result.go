package syncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/forecastsync/forecastsync/internal/weather"
)

// ErrCycleInProgress is returned by TryRun when another cycle holds the lock.
var ErrCycleInProgress = errors.New("sync cycle already in progress")

// State is a step of the sync cycle.
type State string

// Cycle states in execution order. Failed is reachable from any state.
const (
	StateIdle                   State = "idle"
	StateResolving              State = "resolving"
	StateFetchingForecast       State = "fetching_forecast"
	StateParsingForecast        State = "parsing_forecast"
	StateReplacing              State = "replacing"
	StateEvaluatingNotification State = "evaluating_notification"
	StateFetchingAviation       State = "fetching_aviation"
	StateParsingAviation        State = "parsing_aviation"
	StateDone                   State = "done"
	StateFailed                 State = "failed"
)

// Outcome is how a cycle ended.
type Outcome string

// Cycle outcomes.
const (
	// OutcomeSuccess means the forecast rows were replaced. Later steps never
	// change it: a failed notification is reported in
	// CycleResult.NotificationError and a failed METAR in Aviation.
	OutcomeSuccess Outcome = "success"

	// OutcomeNoData means the provider had no data. Nothing was replaced.
	OutcomeNoData Outcome = "no_data"

	// OutcomeFailed means the forecast path failed. Stored rows are untouched.
	OutcomeFailed Outcome = "failed"
)

// AviationStatus is the result of the best-effort aviation sub-pipeline.
type AviationStatus string

// Aviation statuses.
const (
	// AviationSkipped means there was no METAR URL (name based selector) or the
	// cycle ended before reaching the aviation step.
	AviationSkipped AviationStatus = "skipped"
	AviationFetched AviationStatus = "fetched"
	AviationFailed  AviationStatus = "failed"
)

// AviationResult reports the aviation sub-pipeline. Its errors never fail the cycle.
type AviationResult struct {
	Status    AviationStatus          `json:"status"`
	Record    *weather.AviationRecord `json:"record,omitempty"`
	Persisted bool                    `json:"persisted"`
	Err       error                   `json:"-"`
}

// CycleResult describes one sync cycle.
type CycleResult struct {
	CycleID      string         `json:"cycleId"`
	Trigger      string         `json:"trigger,omitempty"`
	Outcome      Outcome        `json:"outcome"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
	RowsReplaced int            `json:"rowsReplaced"`
	Notified     bool           `json:"notified"`
	States       []State        `json:"states"`
	Aviation     AviationResult `json:"aviation"`
	Error        string         `json:"error,omitempty"`

	// NotificationError is set when the notification preferences could not
	// be read or written after the rows were replaced. No notification was
	// sent and the next cycle evaluates the rule again.
	NotificationError string `json:"notificationError,omitempty"`
}

// Duration returns how long the cycle took.
func (r *CycleResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// FinalState returns the last state the cycle entered.
func (r *CycleResult) FinalState() State {
	if len(r.States) == 0 {
		return StateIdle
	}
	return r.States[len(r.States)-1]
}

// CycleError wraps the error that aborted a cycle with the state it failed in.
type CycleError struct {
	State State
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("sync cycle failed while %s: %v", e.State, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}
