package syncer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type cycleMetrics struct {
	cycles   metric.Int64Counter
	duration metric.Float64Histogram
	rows     metric.Int64Counter
	notified metric.Int64Counter
	aviation metric.Int64Counter
}

func newCycleMetrics(meter metric.Meter) (*cycleMetrics, error) {
	cycles, err := meter.Int64Counter("forecastsync.cycles",
		metric.WithDescription("Sync cycles by outcome"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("forecastsync.cycle.duration",
		metric.WithDescription("Sync cycle duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	rows, err := meter.Int64Counter("forecastsync.rows_replaced",
		metric.WithDescription("Forecast rows written by replace-all"),
	)
	if err != nil {
		return nil, err
	}
	notified, err := meter.Int64Counter("forecastsync.notifications",
		metric.WithDescription("New weather notifications emitted"),
	)
	if err != nil {
		return nil, err
	}
	aviation, err := meter.Int64Counter("forecastsync.aviation",
		metric.WithDescription("Aviation sub-pipeline results by status"),
	)
	if err != nil {
		return nil, err
	}

	return &cycleMetrics{
		cycles:   cycles,
		duration: duration,
		rows:     rows,
		notified: notified,
		aviation: aviation,
	}, nil
}

func (m *cycleMetrics) record(ctx context.Context, r *CycleResult) {
	// Recorded even when the cycle context has expired.
	ctx = context.WithoutCancel(ctx)

	outcome := metric.WithAttributes(attribute.String("outcome", string(r.Outcome)))
	m.cycles.Add(ctx, 1, outcome)
	m.duration.Record(ctx, r.Duration().Seconds(), outcome)
	if r.RowsReplaced > 0 {
		m.rows.Add(ctx, int64(r.RowsReplaced))
	}
	if r.Notified {
		m.notified.Add(ctx, 1)
	}
	m.aviation.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(r.Aviation.Status))))
}
