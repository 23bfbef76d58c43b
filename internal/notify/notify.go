// Package notify delivers the "new weather available" notification emitted by a
// sync cycle.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sink receives notifications. Delivery is fire-and-forget: implementations
// must not block the caller on slow transports and report failures only
// through their own logging.
type Sink interface {
	NotifyNewWeatherAvailable(ctx context.Context)
}

// LogSink writes each notification as a log line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs to logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "notify").Logger()}
}

// NotifyNewWeatherAvailable logs the notification.
func (s *LogSink) NotifyNewWeatherAvailable(_ context.Context) {
	s.logger.Info().Msg("new weather available")
}

// Multi fans a notification out to several sinks in order.
type Multi []Sink

// NotifyNewWeatherAvailable notifies every sink.
func (m Multi) NotifyNewWeatherAvailable(ctx context.Context) {
	for _, s := range m {
		s.NotifyNewWeatherAvailable(ctx)
	}
}

// Recorder counts notifications. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	times []time.Time
}

// NotifyNewWeatherAvailable records the call.
func (r *Recorder) NotifyNewWeatherAvailable(_ context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, time.Now())
}

// Count returns the number of notifications received.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

var (
	_ Sink = (*LogSink)(nil)
	_ Sink = Multi(nil)
	_ Sink = (*Recorder)(nil)
)
