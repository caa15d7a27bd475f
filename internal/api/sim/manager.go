// Package sim is an in-memory stand-in for the recon service. It accepts scans,
// advances them through fixed stages on a timer and fabricates deterministic
// results, so the client can be developed and tested without real recon tools.
package sim

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

// FailPrefix makes a submitted domain end in a task error.
const FailPrefix = "fail."

var (
	// ErrDomainRequired is returned when a scan is submitted without a domain.
	ErrDomainRequired = errors.New("domain is required")
	// ErrInvalidDomain is returned for domains that are not host names.
	ErrInvalidDomain = errors.New("invalid domain format")
	// ErrHostRequired is returned when a port scan names no host.
	ErrHostRequired = errors.New("host is required")
	// ErrClosed is returned for scans submitted after the manager was closed.
	ErrClosed = errors.New("task manager closed")
)

var domainPattern = regexp.MustCompile(`^[a-zA-Z0-9][-a-zA-Z0-9.]*\.[a-zA-Z]{2,}$`)

// Task is a snapshot of one simulated scan.
type Task struct {
	ID              string
	Domain          string
	Status          scanning.TaskStatus
	Progress        int
	Message         string
	SubdomainsCount int
	LiveHostsCount  int
	Complete        bool
	Error           string
	UpdatedAt       time.Time

	// Result is set once the task completed.
	Result *scanning.ScanResult
}

// stage is one step of the simulated pipeline.
type stage struct {
	status   scanning.TaskStatus
	progress int
	message  string
	// fraction of the final subdomain and live host counts reported so far.
	subdomains, liveHosts float64
}

var stages = []stage{
	{status: scanning.TaskStatusRunning, progress: 10, message: "Enumerating subdomains..."},
	{status: scanning.TaskStatusRunning, progress: 40, message: "Resolving subdomains...", subdomains: 1},
	{status: scanning.TaskStatusRunning, progress: 70, message: "Probing live hosts...", subdomains: 1, liveHosts: 0.5},
	{status: scanning.TaskStatusComplete, progress: 100, message: "Scan complete", subdomains: 1, liveHosts: 1},
}

// failAfter is the stage index at which tasks for FailPrefix domains fail.
const failAfter = 2

// Config controls task pacing and retention.
type Config struct {
	StepDelay     time.Duration
	TaskTTL       time.Duration
	SweepInterval time.Duration
}

// entry is the manager's mutable record of a task.
type entry struct {
	task Task
	// changed is closed and replaced on every update.
	changed chan struct{}
}

// Manager owns every simulated task.
type Manager struct {
	cfg Config

	mu      sync.RWMutex
	tasks   map[string]*entry
	history []scanning.ScanRecord
	nextID  int64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now    func() time.Time
	logger *logger.Logger
}

// NewManager creates a Manager. Tasks start advancing as soon as they are
// submitted; Run must be called to sweep expired tasks and to stop them. Once
// closed, a Manager rejects new scans with ErrClosed.
func NewManager(cfg Config, log *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:    cfg,
		tasks:  make(map[string]*entry),
		nextID: 1,
		ctx:    ctx,
		cancel: cancel,
		now:    func() time.Time { return time.Now().UTC() },
		logger: log.With("component", "sim_task_manager"),
	}
}

// Run sweeps expired tasks every SweepInterval until ctx is done, then stops
// every task still advancing and waits for them.
func (m *Manager) Run(ctx context.Context) error {
	defer m.Close()

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Info(ctx, "swept expired tasks", "count", n)
			}
		}
	}
}

// Close stops every task still advancing and waits for them. Tasks submitted
// afterwards never advance.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// Done is closed once the manager is closed. Event streams end on it, since
// no task advances afterwards.
func (m *Manager) Done() <-chan struct{} {
	return m.ctx.Done()
}

// Submit validates domain and starts a new task for it.
func (m *Manager) Submit(domain string) (Task, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return Task{}, ErrDomainRequired
	}
	if !domainPattern.MatchString(domain) {
		return Task{}, ErrInvalidDomain
	}

	e := &entry{
		task: Task{
			ID:      uuid.NewString(),
			Domain:  domain,
			Status:  scanning.TaskStatusPending,
			Message: "Initializing...",
		},
		changed: make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Task{}, ErrClosed
	}
	e.task.UpdatedAt = m.now()
	m.tasks[e.task.ID] = e
	task := e.task
	// Added under mu so that Close, which marks closed under mu before
	// waiting, never waits concurrently with an Add.
	m.wg.Add(1)
	m.mu.Unlock()

	go m.advance(e)

	m.logger.Info(m.ctx, "scan submitted", "task_id", task.ID, "domain", domain)
	return task, nil
}

// Get returns the current state of a task.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return e.task, true
}

// Watch returns the current state of a task and a channel closed on its next
// update.
func (m *Manager) Watch(id string) (Task, <-chan struct{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return Task{}, nil, false
	}
	return e.task, e.changed, true
}

// History returns recorded scans, newest first.
func (m *Manager) History() []scanning.ScanRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]scanning.ScanRecord, len(m.history))
	for i, r := range m.history {
		out[len(m.history)-1-i] = r
	}
	return out
}

// ClearHistory forgets every recorded scan.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
}

// Sweep removes finished tasks not updated within the TTL and returns how many
// were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.cfg.TaskTTL)

	removed := 0
	for id, e := range m.tasks {
		if e.task.Complete && e.task.UpdatedAt.Before(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	return removed
}

// advance walks a task through the stages, one per StepDelay.
func (m *Manager) advance(e *entry) {
	defer m.wg.Done()

	id := e.task.ID
	domain := e.task.Domain
	result := fabricateResult(domain)
	fails := strings.HasPrefix(domain, FailPrefix)

	timer := time.NewTimer(m.cfg.StepDelay)
	defer timer.Stop()

	for i, st := range stages {
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
		}

		// A task seen complete always has its history record.
		if fails && i == failAfter {
			m.record(id, domain, "error", 0, 0)
			m.update(e, func(t *Task) {
				t.Status = scanning.TaskStatusError
				t.Message = "subfinder exited with status 1"
				t.Error = fmt.Sprintf("scan of %s failed", domain)
				t.Complete = true
			})
			return
		}

		subs := int(st.subdomains * float64(len(result.Subdomains)))
		live := int(st.liveHosts * float64(len(result.LiveHosts)))
		if st.status == scanning.TaskStatusComplete {
			m.record(id, domain, "completed", subs, live)
		}
		m.update(e, func(t *Task) {
			t.Status = st.status
			t.Progress = st.progress
			t.Message = st.message
			t.SubdomainsCount = subs
			t.LiveHostsCount = live
			if st.status == scanning.TaskStatusComplete {
				t.Complete = true
				t.Result = result
			}
		})

		if st.status == scanning.TaskStatusComplete {
			return
		}
		timer.Reset(m.cfg.StepDelay)
	}
}

func (m *Manager) update(e *entry, fn func(t *Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(&e.task)
	e.task.UpdatedAt = m.now()
	close(e.changed)
	e.changed = make(chan struct{})
}

func (m *Manager) record(taskID, domain, status string, subdomains, liveHosts int) {
	m.mu.Lock()
	m.history = append(m.history, scanning.ScanRecord{
		ID:              m.nextID,
		Domain:          domain,
		Timestamp:       m.now(),
		Status:          status,
		SubdomainsCount: subdomains,
		LiveHostsCount:  liveHosts,
	})
	m.nextID++
	m.mu.Unlock()

	m.logger.Info(m.ctx, "scan finished", "task_id", taskID, "domain", domain, "status", status)
}
