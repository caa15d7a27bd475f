package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/reconaug/internal/app/tracking"
	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

type mockReconService struct {
	mock.Mock
}

func (m *mockReconService) SubmitScan(ctx context.Context, domain string) (scanning.TaskHandle, error) {
	args := m.Called(ctx, domain)
	return args.Get(0).(scanning.TaskHandle), args.Error(1)
}

func (m *mockReconService) FetchResult(ctx context.Context, taskID string) (*scanning.ScanResult, error) {
	args := m.Called(ctx, taskID)
	if res := args.Get(0); res != nil {
		return res.(*scanning.ScanResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// scriptedSubscriber replays a fixed list of events per task, then either
// reports failErr or goes silent. Tasks without a script stay silent.
type scriptedSubscriber struct {
	mu      sync.Mutex
	scripts map[string][]scanning.ProgressEvent
	failErr map[string]error

	subscribed chan string
}

func newScriptedSubscriber() *scriptedSubscriber {
	return &scriptedSubscriber{
		scripts:    make(map[string][]scanning.ProgressEvent),
		failErr:    make(map[string]error),
		subscribed: make(chan string, 16),
	}
}

func (s *scriptedSubscriber) script(taskID string, events ...scanning.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range events {
		events[i].TaskID = taskID
	}
	s.scripts[taskID] = events
}

func (s *scriptedSubscriber) failAfterScript(taskID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr[taskID] = err
}

func (s *scriptedSubscriber) Subscribe(
	ctx context.Context,
	taskID string,
	onEvent func(scanning.ProgressEvent),
	onError func(error),
) func() {
	s.mu.Lock()
	events := s.scripts[taskID]
	failErr := s.failErr[taskID]
	s.mu.Unlock()

	s.subscribed <- taskID

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		for _, ev := range events {
			if ctx.Err() != nil {
				return
			}
			onEvent(ev)
		}
		if failErr != nil && ctx.Err() == nil {
			onError(failErr)
		}
	}()
	return cancel
}

type presenterLog struct {
	mu        sync.Mutex
	started   []scanning.ProgressEvent
	progress  []scanning.ProgressEvent
	completed []*scanning.ScanResult
	failed    []error
}

func (p *presenterLog) ScanStarted(_ context.Context, task scanning.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, task)
}

func (p *presenterLog) Progress(_ context.Context, task scanning.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, task)
}

func (p *presenterLog) ScanCompleted(_ context.Context, result *scanning.ScanResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, result)
}

func (p *presenterLog) ScanFailed(_ context.Context, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, err)
}

func newTestSession(svc scanning.ReconService, sub scanning.ProgressSubscriber, p Presenter) *Session {
	tracer := noop.NewTracerProvider().Tracer("test")
	tr := tracking.NewTracker(sub, logger.Noop(),
		tracking.WithTracer(tracer),
		tracking.WithIdleTimeout(time.Minute),
	)
	return NewSession(svc, tr, p, logger.Noop(), WithTracer(tracer))
}

func TestSession_RunCompletes(t *testing.T) {
	t.Parallel()

	want := &scanning.ScanResult{
		Domain:     "example.com",
		Subdomains: []string{"a.example.com", "b.example.com", "c.example.com", "d.example.com", "e.example.com"},
		LiveHosts: []scanning.LiveHost{
			{URL: "https://a.example.com", StatusCode: 200, Technology: "nginx"},
			{URL: "https://b.example.com", StatusCode: 301},
		},
	}

	svc := new(mockReconService)
	svc.On("SubmitScan", mock.Anything, "example.com").
		Return(scanning.TaskHandle{TaskID: "t1", Domain: "example.com"}, nil).Once()
	svc.On("FetchResult", mock.Anything, "t1").Return(want, nil).Once()

	sub := newScriptedSubscriber()
	sub.script("t1",
		scanning.ProgressEvent{Status: scanning.TaskStatusRunning, Progress: 10, Message: "Enumerating subdomains..."},
		scanning.ProgressEvent{Status: scanning.TaskStatusComplete, Progress: 100, Message: "Scan complete", SubdomainsCount: 5, LiveHostsCount: 2},
		scanning.ProgressEvent{Status: scanning.TaskStatusComplete, Progress: 100, SubdomainsCount: 5, LiveHostsCount: 2},
	)

	p := &presenterLog{}
	s := newTestSession(svc, sub, p)

	got, err := s.Run(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Same(t, want, got)

	svc.AssertExpectations(t)

	p.mu.Lock()
	defer p.mu.Unlock()

	require.Len(t, p.started, 1)
	assert.Equal(t, "t1", p.started[0].TaskID)
	assert.Equal(t, scanning.TaskStatusPending, p.started[0].Status)
	assert.Equal(t, "Initializing...", p.started[0].Message)

	require.Len(t, p.progress, 2)
	last := p.progress[len(p.progress)-1]
	assert.Equal(t, 100, last.Progress)
	assert.Equal(t, 5, last.SubdomainsCount)
	assert.Equal(t, 2, last.LiveHostsCount)

	assert.Len(t, p.completed, 1)
	assert.Empty(t, p.failed)

	_, ok := s.ActiveTask()
	assert.False(t, ok)
}

func TestSession_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		setup    func(svc *mockReconService, sub *scriptedSubscriber)
		wantKind error
	}{
		{
			name: "empty domain",
			setup: func(svc *mockReconService, _ *scriptedSubscriber) {
				svc.On("SubmitScan", mock.Anything, "").
					Return(scanning.TaskHandle{}, scanning.NewError(scanning.KindInvalidInput, "", errors.New("domain is required"))).Once()
			},
			wantKind: scanning.ErrInvalidInput,
		},
		{
			name: "submission rejected",
			setup: func(svc *mockReconService, _ *scriptedSubscriber) {
				svc.On("SubmitScan", mock.Anything, "").
					Return(scanning.TaskHandle{}, scanning.NewError(scanning.KindSubmissionFailed, "", errors.New("500"))).Once()
			},
			wantKind: scanning.ErrSubmissionFailed,
		},
		{
			name: "task error event",
			setup: func(svc *mockReconService, sub *scriptedSubscriber) {
				svc.On("SubmitScan", mock.Anything, "").
					Return(scanning.TaskHandle{TaskID: "t1", Domain: "example.com"}, nil).Once()
				sub.script("t1",
					scanning.ProgressEvent{Status: scanning.TaskStatusRunning, Progress: 40},
					scanning.ProgressEvent{Status: scanning.TaskStatusError, Progress: 40, Message: "httpx not installed"},
				)
			},
			wantKind: scanning.ErrTaskError,
		},
		{
			name: "channel dropped",
			setup: func(svc *mockReconService, sub *scriptedSubscriber) {
				svc.On("SubmitScan", mock.Anything, "").
					Return(scanning.TaskHandle{TaskID: "t1", Domain: "example.com"}, nil).Once()
				sub.script("t1", scanning.ProgressEvent{Status: scanning.TaskStatusRunning, Progress: 10})
				sub.failAfterScript("t1", errors.New("unexpected EOF"))
			},
			wantKind: scanning.ErrChannelError,
		},
		{
			name: "result fetch failed",
			setup: func(svc *mockReconService, sub *scriptedSubscriber) {
				svc.On("SubmitScan", mock.Anything, "").
					Return(scanning.TaskHandle{TaskID: "t1", Domain: "example.com"}, nil).Once()
				svc.On("FetchResult", mock.Anything, "t1").
					Return(nil, scanning.NewError(scanning.KindResultFetchFailed, "t1", errors.New("503"))).Once()
				sub.script("t1", scanning.ProgressEvent{Status: scanning.TaskStatusComplete, Progress: 100})
			},
			wantKind: scanning.ErrResultFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := new(mockReconService)
			sub := newScriptedSubscriber()
			tt.setup(svc, sub)

			p := &presenterLog{}
			s := newTestSession(svc, sub, p)

			res, err := s.Run(context.Background(), "")
			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantKind)

			svc.AssertExpectations(t)

			p.mu.Lock()
			defer p.mu.Unlock()
			require.Len(t, p.failed, 1)
			assert.ErrorIs(t, p.failed[0], tt.wantKind)
			assert.Empty(t, p.completed)
		})
	}
}

func TestSession_NewStartSupersedesPrevious(t *testing.T) {
	t.Parallel()

	svc := new(mockReconService)
	svc.On("SubmitScan", mock.Anything, "first.com").
		Return(scanning.TaskHandle{TaskID: "t1", Domain: "first.com"}, nil).Once()
	svc.On("SubmitScan", mock.Anything, "second.com").
		Return(scanning.TaskHandle{TaskID: "t2", Domain: "second.com"}, nil).Once()
	svc.On("FetchResult", mock.Anything, "t2").
		Return(&scanning.ScanResult{Domain: "second.com"}, nil).Once()

	sub := newScriptedSubscriber()
	sub.script("t2", scanning.ProgressEvent{Status: scanning.TaskStatusComplete, Progress: 100})

	p := &presenterLog{}
	s := newTestSession(svc, sub, p)

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), "first.com")
		firstErr <- err
	}()

	select {
	case id := <-sub.subscribed:
		require.Equal(t, "t1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("first scan never subscribed")
	}

	res, err := s.Run(context.Background(), "second.com")
	require.NoError(t, err)
	assert.Equal(t, "second.com", res.Domain)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("first scan was not superseded")
	}

	svc.AssertExpectations(t)
	svc.AssertNotCalled(t, "FetchResult", mock.Anything, "t1")
}

func TestSession_RunContextCancelled(t *testing.T) {
	t.Parallel()

	svc := new(mockReconService)
	svc.On("SubmitScan", mock.Anything, "example.com").
		Return(scanning.TaskHandle{TaskID: "t1", Domain: "example.com"}, nil).Once()

	sub := newScriptedSubscriber()
	p := &presenterLog{}
	s := newTestSession(svc, sub, p)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sub.subscribed
		cancel()
	}()

	_, err := s.Run(ctx, "example.com")
	assert.ErrorIs(t, err, context.Canceled)

	_, ok := s.ActiveTask()
	assert.False(t, ok)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Empty(t, p.failed)
	assert.Empty(t, p.completed)
}

func TestSession_StartTracksActiveTask(t *testing.T) {
	t.Parallel()

	svc := new(mockReconService)
	svc.On("SubmitScan", mock.Anything, "example.com").
		Return(scanning.TaskHandle{TaskID: "t1", Domain: "example.com"}, nil).Once()

	sub := newScriptedSubscriber()
	sub.script("t1", scanning.ProgressEvent{Status: scanning.TaskStatusRunning, Progress: 25, Message: "Probing"})

	p := &presenterLog{}
	s := newTestSession(svc, sub, p)

	handle, err := s.Start(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, "t1", handle.TaskID)

	require.Eventually(t, func() bool {
		task, ok := s.ActiveTask()
		return ok && task.Progress == 25
	}, 5*time.Second, 5*time.Millisecond)

	task, _ := s.ActiveTask()
	assert.Equal(t, scanning.TaskStatusRunning, task.Status)
	assert.Equal(t, "Probing", task.Message)

	s.Cancel()
	_, ok := s.ActiveTask()
	assert.False(t, ok)
}
