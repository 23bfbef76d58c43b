package models

import (
	"github.com/forecastsync/forecastsync/internal/syncer"
)

// CycleSummary is the API view of a finished sync cycle.
type CycleSummary struct {
	CycleID      string    `json:"cycleId"`
	Trigger      string    `json:"trigger,omitempty"`
	Outcome      string    `json:"outcome"`
	FinalState   string    `json:"finalState"`
	StartedAt    Timestamp `json:"startedAt"`
	FinishedAt   Timestamp `json:"finishedAt"`
	DurationMS   int64     `json:"durationMs"`
	RowsReplaced int       `json:"rowsReplaced"`
	Notified     bool      `json:"notified"`
	Aviation     string    `json:"aviation"`
	Error        string    `json:"error,omitempty"`

	NotificationError string `json:"notificationError,omitempty"`
}

// NewCycleSummary converts a cycle result. Returns nil for nil.
func NewCycleSummary(r *syncer.CycleResult) *CycleSummary {
	if r == nil {
		return nil
	}
	return &CycleSummary{
		CycleID:      r.CycleID,
		Trigger:      r.Trigger,
		Outcome:      string(r.Outcome),
		FinalState:   string(r.FinalState()),
		StartedAt:    NewTimestamp(r.StartedAt),
		FinishedAt:   NewTimestamp(r.FinishedAt),
		DurationMS:   r.Duration().Milliseconds(),
		RowsReplaced: r.RowsReplaced,
		Notified:     r.Notified,
		Aviation:     string(r.Aviation.Status),
		Error:        r.Error,

		NotificationError: r.NotificationError,
	}
}
