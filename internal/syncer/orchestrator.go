// Package syncer runs the forecast sync cycle: resolve the request target,
// fetch and parse the forecast, replace the stored rows, decide on a
// notification, then fetch the aviation observation on a best-effort basis.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/forecastsync/forecastsync/internal/forecaststore"
	"github.com/forecastsync/forecastsync/internal/notify"
	"github.com/forecastsync/forecastsync/internal/preferences"
	"github.com/forecastsync/forecastsync/internal/weather"
	"github.com/forecastsync/forecastsync/internal/weather/checkwx"
	"github.com/forecastsync/forecastsync/internal/weather/openweathermap"
)

const instrumentationName = "github.com/forecastsync/forecastsync/internal/syncer"

// Fetcher performs a single GET and returns the whole body.
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Config holds the collaborators and settings of an Orchestrator.
type Config struct {
	URLs            *weather.URLBuilder
	ForecastFetcher Fetcher
	AviationFetcher Fetcher
	Preferences     preferences.Store
	Store           forecaststore.Repository
	Notifier        notify.Sink
	Logger          zerolog.Logger

	// Tracer and Meter default to the global OpenTelemetry providers.
	Tracer trace.Tracer
	Meter  metric.Meter

	// PersistAviation stores each fetched METAR with UpsertAviation.
	// Default: false (the observation is only reported in the cycle result)
	PersistAviation bool

	// CycleTimeout bounds a whole cycle. Default: 60 seconds
	CycleTimeout time.Duration

	// Now is the cycle clock. Default: time.Now
	Now func() time.Time
}

// DefaultCycleTimeout is used when Config.CycleTimeout is zero.
const DefaultCycleTimeout = 60 * time.Second

// Orchestrator runs sync cycles one at a time.
type Orchestrator struct {
	cfg     Config
	logger  zerolog.Logger
	tracer  trace.Tracer
	metrics *cycleMetrics

	// slot holds a token while a cycle runs.
	slot    chan struct{}
	running atomic.Bool

	lastMu sync.RWMutex
	last   *CycleResult
}

// NewOrchestrator validates cfg and creates an Orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.URLs == nil:
		return nil, errors.New("syncer: URLs is required")
	case cfg.ForecastFetcher == nil:
		return nil, errors.New("syncer: ForecastFetcher is required")
	case cfg.Preferences == nil:
		return nil, errors.New("syncer: Preferences is required")
	case cfg.Store == nil:
		return nil, errors.New("syncer: Store is required")
	case cfg.Notifier == nil:
		return nil, errors.New("syncer: Notifier is required")
	}

	if cfg.AviationFetcher == nil {
		cfg.AviationFetcher = cfg.ForecastFetcher
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter(instrumentationName)
	}
	if cfg.CycleTimeout == 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	metrics, err := newCycleMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("syncer: creating metrics: %w", err)
	}

	return &Orchestrator{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "syncer").Logger(),
		tracer:  cfg.Tracer,
		metrics: metrics,
		slot:    make(chan struct{}, 1),
	}, nil
}

// Run executes one cycle, waiting for an in-flight cycle to finish first.
// If ctx ends while waiting, Run returns ctx.Err() and no cycle is started.
// The returned error is a *CycleError when the forecast path failed; the
// no-data outcome is not an error.
func (o *Orchestrator) Run(ctx context.Context, trigger string) (*CycleResult, error) {
	select {
	case o.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.slot }()
	return o.run(ctx, trigger)
}

// TryRun executes one cycle unless another one is in flight, in which case it
// returns ErrCycleInProgress without doing anything.
func (o *Orchestrator) TryRun(ctx context.Context, trigger string) (*CycleResult, error) {
	select {
	case o.slot <- struct{}{}:
	default:
		return nil, ErrCycleInProgress
	}
	defer func() { <-o.slot }()
	return o.run(ctx, trigger)
}

// Running reports whether a cycle is currently executing.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// LastResult returns the most recent finished cycle, or nil.
func (o *Orchestrator) LastResult() *CycleResult {
	o.lastMu.RLock()
	defer o.lastMu.RUnlock()
	return o.last
}

// cycle carries the per-run state through the steps.
type cycle struct {
	result *CycleResult
	now    time.Time
	span   trace.Span
	logger zerolog.Logger
}

// enter records a state transition. Cancellation is checked between states.
func (c *cycle) enter(ctx context.Context, s State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mark(s)
	return nil
}

// mark records a state transition without checking for cancellation.
func (c *cycle) mark(s State) {
	c.result.States = append(c.result.States, s)
	c.span.AddEvent(string(s))
	c.logger.Debug().Str("state", string(s)).Msg("sync state")
}

func (o *Orchestrator) run(ctx context.Context, trigger string) (*CycleResult, error) {
	o.running.Store(true)
	defer o.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.CycleTimeout)
	defer cancel()

	now := o.cfg.Now()
	result := &CycleResult{
		CycleID:   uuid.NewString(),
		Trigger:   trigger,
		StartedAt: now,
		States:    []State{StateIdle},
		Aviation:  AviationResult{Status: AviationSkipped},
	}

	ctx, span := o.tracer.Start(ctx, "forecast_sync.cycle",
		trace.WithAttributes(
			attribute.String("sync.cycle_id", result.CycleID),
			attribute.String("sync.trigger", trigger),
		),
	)
	defer span.End()

	c := &cycle{
		result: result,
		now:    now,
		span:   span,
		logger: o.logger.With().Str("cycle_id", result.CycleID).Str("trigger", trigger).Logger(),
	}

	c.logger.Info().Msg("sync cycle started")

	err := o.runCycle(ctx, c)
	result.FinishedAt = o.cfg.Now()

	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err.Error()
		result.States = append(result.States, StateFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error().Err(err).Dur("duration", result.Duration()).Msg("sync cycle failed")
	} else {
		c.logger.Info().
			Str("outcome", string(result.Outcome)).
			Int("rows_replaced", result.RowsReplaced).
			Bool("notified", result.Notified).
			Str("aviation", string(result.Aviation.Status)).
			Dur("duration", result.Duration()).
			Msg("sync cycle completed")
	}

	span.SetAttributes(
		attribute.String("sync.outcome", string(result.Outcome)),
		attribute.Int("sync.rows_replaced", result.RowsReplaced),
		attribute.Bool("sync.notified", result.Notified),
	)
	o.metrics.record(ctx, result)

	o.lastMu.Lock()
	o.last = result
	o.lastMu.Unlock()

	return result, err
}

func (o *Orchestrator) runCycle(ctx context.Context, c *cycle) error {
	fail := func(s State, err error) error {
		return &CycleError{State: s, Err: err}
	}

	if err := c.enter(ctx, StateResolving); err != nil {
		return fail(StateResolving, err)
	}
	sel, err := preferences.ResolveSelector(ctx, o.cfg.Preferences)
	if err != nil {
		return fail(StateResolving, fmt.Errorf("resolving selector: %w", err))
	}
	forecastURL := o.cfg.URLs.ForecastURL(sel)
	c.logger.Debug().Stringer("selector", sel).Msg("resolved forecast target")

	if err := c.enter(ctx, StateFetchingForecast); err != nil {
		return fail(StateFetchingForecast, err)
	}
	raw, err := o.cfg.ForecastFetcher.Fetch(ctx, forecastURL, nil)
	if err != nil {
		return fail(StateFetchingForecast, err)
	}

	if err := c.enter(ctx, StateParsingForecast); err != nil {
		return fail(StateParsingForecast, err)
	}
	batch, err := openweathermap.ParseForecast(raw, c.now)
	if err != nil {
		if weather.IsNoData(err) {
			c.logger.Info().Err(err).Msg("forecast provider has no data")
			return o.finishNoData(ctx, c)
		}
		return fail(StateParsingForecast, err)
	}

	if err := o.cfg.Preferences.SetCoordinates(ctx, batch.Latitude, batch.Longitude); err != nil {
		return fail(StateParsingForecast, fmt.Errorf("storing coordinates: %w", err))
	}

	if len(batch.Records) == 0 {
		c.logger.Info().Msg("forecast payload has no days")
		return o.finishNoData(ctx, c)
	}

	if err := c.enter(ctx, StateReplacing); err != nil {
		return fail(StateReplacing, err)
	}
	if err := o.cfg.Store.ReplaceAll(ctx, batch.Records); err != nil {
		return fail(StateReplacing, &weather.StoreError{Op: "replace_all", Err: err})
	}
	c.result.RowsReplaced = len(batch.Records)

	// The rows are committed. Nothing after this point fails the cycle, and
	// the notification bookkeeping must not be cut short by cancellation.
	c.mark(StateEvaluatingNotification)
	notified, err := o.evaluateNotification(context.WithoutCancel(ctx), c.now)
	if err != nil {
		c.logger.Error().Err(err).Msg("notification not sent")
		c.span.AddEvent("notification_failed", trace.WithAttributes(attribute.String("error", err.Error())))
		c.result.NotificationError = err.Error()
	}
	c.result.Notified = notified

	c.result.Aviation = o.runAviation(ctx, c)

	c.result.Outcome = OutcomeSuccess
	c.result.States = append(c.result.States, StateDone)
	return nil
}

func (o *Orchestrator) finishNoData(ctx context.Context, c *cycle) error {
	if err := ctx.Err(); err != nil {
		return &CycleError{State: c.result.FinalState(), Err: err}
	}
	c.result.Outcome = OutcomeNoData
	c.result.States = append(c.result.States, StateDone)
	return nil
}

// evaluateNotification notifies when notifications are enabled and at least a
// full day has passed since the last one. now is recorded as the last time
// before the sink is called; if that write fails nothing is sent, so the next
// cycle tries again and a notification is never repeated within a day.
func (o *Orchestrator) evaluateNotification(ctx context.Context, now time.Time) (bool, error) {
	enabled, err := o.cfg.Preferences.NotificationsEnabled(ctx)
	if err != nil {
		return false, fmt.Errorf("reading notification preference: %w", err)
	}
	if !enabled {
		return false, nil
	}

	last, err := o.cfg.Preferences.LastNotification(ctx)
	if err != nil {
		return false, fmt.Errorf("reading last notification: %w", err)
	}

	nowMillis := now.UnixMilli()
	if nowMillis-last < weather.DayMillis {
		return false, nil
	}

	if err := o.cfg.Preferences.SetLastNotification(ctx, nowMillis); err != nil {
		return false, fmt.Errorf("storing last notification: %w", err)
	}
	o.cfg.Notifier.NotifyNewWeatherAvailable(ctx)
	return true, nil
}

// runAviation fetches and parses the METAR for the current coordinates. Every
// failure is logged and reported in the result only.
func (o *Orchestrator) runAviation(ctx context.Context, c *cycle) AviationResult {
	logger := c.logger.With().Str("pipeline", "aviation").Logger()
	failed := func(err error) AviationResult {
		logger.Warn().Err(err).Msg("aviation sync failed")
		c.span.AddEvent("aviation_failed", trace.WithAttributes(attribute.String("error", err.Error())))
		return AviationResult{Status: AviationFailed, Err: err}
	}

	// Coordinates may have just been learned from the forecast payload.
	sel, err := preferences.ResolveSelector(ctx, o.cfg.Preferences)
	if err != nil {
		return failed(fmt.Errorf("resolving selector: %w", err))
	}
	metarURL, ok := o.cfg.URLs.MetarURL(sel)
	if !ok {
		logger.Debug().Msg("no coordinates, aviation skipped")
		return AviationResult{Status: AviationSkipped}
	}

	if err := c.enter(ctx, StateFetchingAviation); err != nil {
		return failed(err)
	}
	raw, err := o.cfg.AviationFetcher.Fetch(ctx, metarURL, o.cfg.URLs.AviationHeaders())
	if err != nil {
		return failed(err)
	}

	if err := c.enter(ctx, StateParsingAviation); err != nil {
		return failed(err)
	}
	rec, err := checkwx.ParseMetar(raw, c.now)
	if err != nil {
		return failed(err)
	}

	result := AviationResult{Status: AviationFetched, Record: rec}
	if o.cfg.PersistAviation {
		if err := o.cfg.Store.UpsertAviation(ctx, *rec); err != nil {
			logger.Warn().Err(err).Msg("storing aviation record failed")
			result.Err = &weather.StoreError{Op: "upsert_aviation", Err: err}
		} else {
			result.Persisted = true
		}
	}

	logger.Info().
		Str("flight_category", rec.FlightCategory).
		Bool("persisted", result.Persisted).
		Msg("aviation observation fetched")

	return result
}
