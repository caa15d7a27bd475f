// Package session runs the end-to-end scan flow for one client: submit a scan,
// follow its progress, fetch the result once it completes and hand every step
// to a Presenter.
package session

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/reconaug/internal/app/tracking"
	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

// ErrSuperseded is returned by Run when another scan was started on the same
// session before this one finished.
var ErrSuperseded = errors.New("scan superseded by a newer scan")

// Presenter renders the scan flow. Calls for one scan are never concurrent
// and stop as soon as a newer scan starts.
type Presenter interface {
	// ScanStarted is called once the service accepted the scan.
	ScanStarted(ctx context.Context, task scanning.ProgressEvent)
	// Progress is called with the task state after each progress event.
	Progress(ctx context.Context, task scanning.ProgressEvent)
	// ScanCompleted is called with the fetched result.
	ScanCompleted(ctx context.Context, result *scanning.ScanResult)
	// ScanFailed is called with a *scanning.Error for any failure of the attempt.
	ScanFailed(ctx context.Context, err error)
}

// attempt is one Start call.
type attempt struct {
	task   *scanning.ScanTask
	cancel tracking.CancelFunc

	doneOnce sync.Once
	done     func(*scanning.ScanResult, error)
}

func (a *attempt) finish(res *scanning.ScanResult, err error) {
	a.doneOnce.Do(func() {
		if a.done != nil {
			a.done(res, err)
		}
	})
}

// Session owns the single active scan of a client.
type Session struct {
	svc       scanning.ReconService
	tracker   *tracking.Tracker
	presenter Presenter

	mu     sync.Mutex
	active *attempt

	tracer trace.Tracer
	logger *logger.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithTracer sets the tracer used for session spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) { s.tracer = tracer }
}

// NewSession creates a Session that submits and fetches through svc and
// follows progress with tracker.
func NewSession(
	svc scanning.ReconService,
	tracker *tracking.Tracker,
	presenter Presenter,
	log *logger.Logger,
	opts ...Option,
) *Session {
	s := &Session{
		svc:       svc,
		tracker:   tracker,
		presenter: presenter,
		tracer:    otel.Tracer("reconaug/session"),
		logger:    log.With("component", "scan_session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start submits a scan for domain and begins tracking it. It returns once the
// scan is accepted; the outcome is delivered to the Presenter. Any scan still
// in flight on this session is cancelled first.
func (s *Session) Start(ctx context.Context, domain string) (scanning.TaskHandle, error) {
	return s.start(ctx, domain, nil)
}

// Run starts a scan and blocks until it completes, fails, is superseded by
// another Start, or ctx is done.
func (s *Session) Run(ctx context.Context, domain string) (*scanning.ScanResult, error) {
	type outcome struct {
		res *scanning.ScanResult
		err error
	}
	ch := make(chan outcome, 1)

	if _, err := s.start(ctx, domain, func(res *scanning.ScanResult, err error) {
		ch <- outcome{res: res, err: err}
	}); err != nil {
		return nil, err
	}

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		s.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel stops the active scan without notifying the Presenter.
func (s *Session) Cancel() {
	s.mu.Lock()
	a := s.active
	s.active = nil
	s.mu.Unlock()

	if a != nil {
		a.cancel()
		a.finish(nil, context.Canceled)
	}
}

// ActiveTask returns the state of the scan in flight, if any.
func (s *Session) ActiveTask() (scanning.ProgressEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return scanning.ProgressEvent{}, false
	}
	return s.active.task.Snapshot(), true
}

func (s *Session) start(
	ctx context.Context,
	domain string,
	done func(*scanning.ScanResult, error),
) (scanning.TaskHandle, error) {
	ctx, span := s.tracer.Start(ctx, "session.start",
		trace.WithAttributes(attribute.String("domain", domain)),
	)
	defer span.End()

	s.supersede()

	handle, err := s.svc.SubmitScan(ctx, domain)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan submission failed")
		s.logger.Warn(ctx, "scan submission failed", "domain", domain, "error", err)
		s.presenter.ScanFailed(ctx, err)
		return scanning.TaskHandle{}, err
	}
	span.SetAttributes(attribute.String("task_id", handle.TaskID))

	a := &attempt{task: scanning.NewScanTask(handle.TaskID, handle.Domain), done: done}
	s.presenter.ScanStarted(ctx, a.task.Snapshot())

	// Handlers block on mu until a is installed as the active attempt.
	s.mu.Lock()
	prev := s.active
	cancel, err := s.tracker.Track(ctx, handle.TaskID, tracking.Handlers{
		OnProgress: func(ctx context.Context, ev scanning.ProgressEvent) { s.onProgress(ctx, a, ev) },
		OnComplete: func(ctx context.Context, _ scanning.ProgressEvent) { s.onComplete(ctx, a) },
		OnError:    func(ctx context.Context, err error) { s.onError(ctx, a, err) },
	})
	if err == nil {
		a.cancel = cancel
		s.active = a
	}
	s.mu.Unlock()

	// A concurrent Start may have slipped in while this one was submitting.
	if prev != nil {
		if err == nil {
			prev.finish(nil, ErrSuperseded)
		} else {
			s.mu.Lock()
			s.active = prev
			s.mu.Unlock()
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "tracking failed to start")
		s.presenter.ScanFailed(ctx, err)
		a.finish(nil, err)
		return scanning.TaskHandle{}, err
	}

	s.logger.Info(ctx, "scan started", "domain", handle.Domain, "task_id", handle.TaskID)
	return handle, nil
}

// supersede cancels the attempt in flight, if any.
func (s *Session) supersede() {
	s.mu.Lock()
	prev := s.active
	s.active = nil
	s.mu.Unlock()

	if prev == nil {
		return
	}
	prev.cancel()
	prev.finish(nil, ErrSuperseded)
}

// isActive reports whether a is still the session's active attempt.
func (s *Session) isActive(a *attempt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active == a
}

// release clears a if it is still the active attempt.
func (s *Session) release(a *attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == a {
		s.active = nil
	}
}

func (s *Session) onProgress(ctx context.Context, a *attempt, ev scanning.ProgressEvent) {
	s.mu.Lock()
	if s.active != a {
		s.mu.Unlock()
		return
	}
	if err := a.task.ApplyProgress(ev); err != nil {
		s.mu.Unlock()
		s.logger.Debug(ctx, "ignoring progress event", "task_id", a.task.ID(), "error", err)
		return
	}
	snap := a.task.Snapshot()
	s.mu.Unlock()

	s.presenter.Progress(ctx, snap)
}

func (s *Session) onComplete(ctx context.Context, a *attempt) {
	taskID := a.task.ID()

	res, err := s.svc.FetchResult(ctx, taskID)
	if !s.isActive(a) {
		return
	}
	s.release(a)

	if err != nil {
		s.logger.Warn(ctx, "result fetch failed", "task_id", taskID, "error", err)
		s.presenter.ScanFailed(ctx, err)
		a.finish(nil, err)
		return
	}

	s.logger.Info(ctx, "scan completed",
		"task_id", taskID,
		"subdomains", res.SubdomainsCount(),
		"live_hosts", res.LiveHostsCount(),
	)
	s.presenter.ScanCompleted(ctx, res)
	a.finish(res, nil)
}

func (s *Session) onError(ctx context.Context, a *attempt, err error) {
	if !s.isActive(a) {
		return
	}
	s.release(a)

	s.presenter.ScanFailed(ctx, err)
	a.finish(nil, err)
}
