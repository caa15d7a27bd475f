// Package tracking follows the progress of a single scan task from submission
// to a terminal outcome.
//
// A Tracker owns at most one active observation. Each observation runs one
// goroutine that serializes every handler call, whether it comes from a
// progress event, a channel failure or the idle timeout. Handlers therefore
// never run concurrently with each other, and cancelling from inside a
// handler is safe.
package tracking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

// DefaultIdleTimeout is how long an observation may go without a progress
// event before it fails with a channel error.
const DefaultIdleTimeout = 60 * time.Second

// Handlers receive the outcome of an observation. OnProgress is optional;
// OnComplete and OnError are required. At most one of OnComplete and OnError
// is called, and at most once.
type Handlers struct {
	// OnProgress is called for every event, including the terminal one, before
	// the terminal handler.
	OnProgress func(ctx context.Context, ev scanning.ProgressEvent)
	// OnComplete is called once the task completes. The progress channel is
	// already closed when it runs.
	OnComplete func(ctx context.Context, ev scanning.ProgressEvent)
	// OnError is called with a *scanning.Error of kind TaskError or
	// ChannelError. The progress channel is already closed when it runs.
	OnError func(ctx context.Context, err error)
}

// CancelFunc stops an observation. It is idempotent, never blocks, and is a
// no-op once the observation has reached a terminal state.
type CancelFunc func()

// Tracker observes the progress of one scan task at a time.
type Tracker struct {
	subscriber  scanning.ProgressSubscriber
	idleTimeout time.Duration

	mu     sync.Mutex
	active *observation

	metrics TrackerMetrics
	tracer  trace.Tracer
	logger  *logger.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIdleTimeout sets the idle timeout. A non-positive value disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.idleTimeout = d }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m TrackerMetrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithTracer sets the tracer used for observation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Tracker) { t.tracer = tracer }
}

// NewTracker creates a Tracker reading progress from subscriber.
func NewTracker(subscriber scanning.ProgressSubscriber, log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		subscriber:  subscriber,
		idleTimeout: DefaultIdleTimeout,
		metrics:     noopMetrics{},
		tracer:      otel.Tracer("reconaug/tracking"),
		logger:      log.With("component", "progress_tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts observing taskID. Any observation still running is cancelled
// first and will not call its handlers again. Cancelling ctx cancels the
// observation without calling any handler.
func (t *Tracker) Track(ctx context.Context, taskID string, h Handlers) (CancelFunc, error) {
	if taskID == "" {
		return nil, scanning.NewError(scanning.KindInvalidInput, "", errors.New("task id is required"))
	}
	if h.OnComplete == nil || h.OnError == nil {
		return nil, scanning.NewError(scanning.KindInvalidInput, taskID, errors.New("completion and error handlers are required"))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev := t.active; prev != nil {
		prev.cancel()
		t.logger.Debug(ctx, "replaced previous observation", "previous_task_id", prev.taskID, "task_id", taskID)
	}

	ctx, span := t.tracer.Start(ctx, "tracking.observe",
		trace.WithAttributes(attribute.String("task_id", taskID)),
	)
	subCtx, stopSubscription := context.WithCancel(ctx)

	o := &observation{
		taskID:      taskID,
		handlers:    h,
		idleTimeout: t.idleTimeout,
		events:      make(chan scanning.ProgressEvent),
		errs:        make(chan error),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		started:     time.Now(),
		metrics:     t.metrics,
		span:        span,
		logger:      t.logger.With("task_id", taskID),
	}
	o.state.Store(int32(StateObserving))

	unsubscribe := t.subscriber.Subscribe(subCtx, taskID, o.push, o.pushErr)
	o.unsubscribe = func() {
		unsubscribe()
		stopSubscription()
	}
	t.active = o

	t.metrics.IncObservationsStarted(ctx)
	o.logger.Info(ctx, "tracking task progress")

	go o.run(ctx)

	return o.cancel, nil
}

// Cancel cancels the active observation, if any.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	o := t.active
	t.mu.Unlock()

	if o != nil {
		o.cancel()
	}
}

// State returns the state of the most recent observation, or StateIdle if
// nothing was tracked yet.
func (t *Tracker) State() State {
	t.mu.Lock()
	o := t.active
	t.mu.Unlock()

	if o == nil {
		return StateIdle
	}
	return State(o.state.Load())
}

// ActiveTaskID returns the task of the most recent observation while it is
// still observing.
func (t *Tracker) ActiveTaskID() (string, bool) {
	t.mu.Lock()
	o := t.active
	t.mu.Unlock()

	if o == nil || State(o.state.Load()) != StateObserving {
		return "", false
	}
	return o.taskID, true
}

// observation is one Track call. Its run goroutine is the only caller of the
// handlers.
type observation struct {
	taskID      string
	handlers    Handlers
	idleTimeout time.Duration

	events chan scanning.ProgressEvent
	errs   chan error

	// stop is closed exactly once, by cancel or when run finishes.
	stop     chan struct{}
	haltOnce sync.Once
	// done is closed when run returns.
	done chan struct{}

	unsubscribe func()
	cancelled   atomic.Bool
	state       atomic.Int32
	started     time.Time

	metrics TrackerMetrics
	span    trace.Span
	logger  *logger.Logger
}

// push hands an event to the run loop, giving up once the observation stopped.
func (o *observation) push(ev scanning.ProgressEvent) {
	select {
	case o.events <- ev:
	case <-o.stop:
	}
}

// pushErr hands a channel failure to the run loop, giving up once the
// observation stopped.
func (o *observation) pushErr(err error) {
	select {
	case o.errs <- err:
	case <-o.stop:
	}
}

// halt closes the progress channel. Safe to call any number of times from any
// goroutine.
func (o *observation) halt() {
	o.haltOnce.Do(func() {
		close(o.stop)
		o.unsubscribe()
	})
}

// cancel suppresses every later handler call and stops the channel.
func (o *observation) cancel() {
	o.cancelled.Store(true)
	o.state.CompareAndSwap(int32(StateObserving), int32(StateIdle))
	o.halt()
}

func (o *observation) run(ctx context.Context) {
	defer close(o.done)
	defer o.span.End()
	defer o.halt()

	var idle <-chan time.Time
	var timer *time.Timer
	if o.idleTimeout > 0 {
		timer = time.NewTimer(o.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		select {
		case <-o.stop:
			o.finish(ctx, outcomeCancelled)
			return

		case <-ctx.Done():
			o.cancel()
			o.finish(ctx, outcomeCancelled)
			return

		case <-idle:
			o.metrics.IncIdleTimeouts(ctx)
			o.fail(ctx, scanning.NewError(scanning.KindChannelError, o.taskID, scanning.ErrIdleTimeout), outcomeIdleTimeout)
			return

		case err := <-o.errs:
			o.fail(ctx, asChannelError(o.taskID, err), outcomeFailed)
			return

		case ev := <-o.events:
			if timer != nil {
				timer.Reset(o.idleTimeout)
			}
			o.metrics.IncEventsReceived(ctx)
			if o.handleEvent(ctx, ev) {
				return
			}
			if o.cancelled.Load() {
				o.finish(ctx, outcomeCancelled)
				return
			}
		}
	}
}

// handleEvent applies one event and reports whether the observation is over.
// A cancellation seen here is left for the caller to record.
func (o *observation) handleEvent(ctx context.Context, ev scanning.ProgressEvent) bool {
	if o.cancelled.Load() {
		return false
	}
	if o.handlers.OnProgress != nil {
		o.handlers.OnProgress(ctx, ev)
		if o.cancelled.Load() {
			return false
		}
	}

	switch ev.Status {
	case scanning.TaskStatusComplete:
		if !o.state.CompareAndSwap(int32(StateObserving), int32(StateCompleted)) {
			return true
		}
		o.halt()
		o.finish(ctx, outcomeCompleted)
		o.span.SetStatus(codes.Ok, "task completed")
		o.handlers.OnComplete(ctx, ev)
		return true

	case scanning.TaskStatusError:
		o.fail(ctx, scanning.NewTaskError(o.taskID, ev.Message), outcomeFailed)
		return true
	}

	return false
}

func (o *observation) fail(ctx context.Context, err error, result outcome) {
	if o.cancelled.Load() || !o.state.CompareAndSwap(int32(StateObserving), int32(StateFailed)) {
		return
	}
	o.halt()
	o.finish(ctx, result)
	o.span.RecordError(err)
	o.span.SetStatus(codes.Error, "observation failed")
	o.logger.Warn(ctx, "task progress failed", "error", err)
	o.handlers.OnError(ctx, err)
}

func (o *observation) finish(ctx context.Context, result outcome) {
	o.metrics.IncObservationsFinished(ctx, string(result))
	o.metrics.ObserveObservationDuration(ctx, time.Since(o.started))
	o.span.SetAttributes(attribute.String("outcome", string(result)))
	o.logger.Debug(ctx, "observation finished", "outcome", string(result))
}

// asChannelError keeps scan errors as they are and wraps anything else as a
// channel error.
func asChannelError(taskID string, err error) error {
	if _, ok := scanning.KindOf(err); ok {
		return err
	}
	return scanning.NewError(scanning.KindChannelError, taskID, err)
}

type noopMetrics struct{}

func (noopMetrics) IncObservationsStarted(context.Context)                    {}
func (noopMetrics) IncObservationsFinished(context.Context, string)           {}
func (noopMetrics) IncEventsReceived(context.Context)                         {}
func (noopMetrics) IncIdleTimeouts(context.Context)                           {}
func (noopMetrics) ObserveObservationDuration(context.Context, time.Duration) {}
