package tracking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// TrackerMetrics defines metrics operations needed by the tracker.
type TrackerMetrics interface {
	IncObservationsStarted(ctx context.Context)
	IncObservationsFinished(ctx context.Context, result string)
	IncEventsReceived(ctx context.Context)
	IncIdleTimeouts(ctx context.Context)
	ObserveObservationDuration(ctx context.Context, d time.Duration)
}

// trackerMetrics implements TrackerMetrics.
type trackerMetrics struct {
	observationsStarted  metric.Int64Counter
	observationsFinished metric.Int64Counter
	eventsReceived       metric.Int64Counter
	idleTimeouts         metric.Int64Counter
	observationDuration  metric.Float64Histogram
}

const namespace = "tracker"

// NewTrackerMetrics creates a new tracker metrics instance.
func NewTrackerMetrics(mp metric.MeterProvider) (*trackerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(trackerMetrics)
	var err error

	if m.observationsStarted, err = meter.Int64Counter(
		"observations_started_total",
		metric.WithDescription("Total number of progress observations started"),
	); err != nil {
		return nil, err
	}

	if m.observationsFinished, err = meter.Int64Counter(
		"observations_finished_total",
		metric.WithDescription("Total number of progress observations finished, by outcome"),
	); err != nil {
		return nil, err
	}

	if m.eventsReceived, err = meter.Int64Counter(
		"progress_events_received_total",
		metric.WithDescription("Total number of progress events received"),
	); err != nil {
		return nil, err
	}

	if m.idleTimeouts, err = meter.Int64Counter(
		"idle_timeouts_total",
		metric.WithDescription("Total number of observations failed by the idle timeout"),
	); err != nil {
		return nil, err
	}

	if m.observationDuration, err = meter.Float64Histogram(
		"observation_duration_seconds",
		metric.WithDescription("Time from subscribing to a terminal outcome"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *trackerMetrics) IncObservationsStarted(ctx context.Context) {
	m.observationsStarted.Add(ctx, 1)
}

func (m *trackerMetrics) IncObservationsFinished(ctx context.Context, result string) {
	m.observationsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", result)))
}

func (m *trackerMetrics) IncEventsReceived(ctx context.Context) {
	m.eventsReceived.Add(ctx, 1)
}

func (m *trackerMetrics) IncIdleTimeouts(ctx context.Context) {
	m.idleTimeouts.Add(ctx, 1)
}

func (m *trackerMetrics) ObserveObservationDuration(ctx context.Context, d time.Duration) {
	m.observationDuration.Record(ctx, d.Seconds())
}
