package scanning

import (
	"fmt"
	"time"
)

// ScanTask is the client-side view of one asynchronous scan running on the
// recon service. It is created when a scan is submitted and is mutated only by
// progress events until it reaches a terminal status.
type ScanTask struct {
	id              string
	domain          string
	status          TaskStatus
	progress        int
	message         string
	subdomainsCount int
	liveHostsCount  int

	createdAt  time.Time
	lastUpdate time.Time
}

// NewScanTask creates a pending ScanTask for the given task id and domain.
func NewScanTask(id, domain string) *ScanTask {
	now := time.Now()
	return &ScanTask{
		id:         id,
		domain:     domain,
		status:     TaskStatusPending,
		message:    "Initializing...",
		createdAt:  now,
		lastUpdate: now,
	}
}

// ID returns the opaque task identifier assigned by the service.
func (t *ScanTask) ID() string { return t.id }

// Domain returns the target domain.
func (t *ScanTask) Domain() string { return t.domain }

// Status returns the current status.
func (t *ScanTask) Status() TaskStatus { return t.status }

// Progress returns the completion percentage in the range 0-100.
func (t *ScanTask) Progress() int { return t.progress }

// Message returns the latest human-readable status message.
func (t *ScanTask) Message() string { return t.message }

// SubdomainsCount returns the running count of discovered subdomains.
func (t *ScanTask) SubdomainsCount() int { return t.subdomainsCount }

// LiveHostsCount returns the running count of responsive hosts.
func (t *ScanTask) LiveHostsCount() int { return t.liveHostsCount }

// CreatedAt returns when the task was created locally.
func (t *ScanTask) CreatedAt() time.Time { return t.createdAt }

// LastUpdate returns when the last progress event was applied.
func (t *ScanTask) LastUpdate() time.Time { return t.lastUpdate }

// IsTerminal reports whether the task is complete or failed.
func (t *ScanTask) IsTerminal() bool { return t.status.IsTerminal() }

// TaskTerminalError is returned when a progress event arrives for a task that
// already reached a terminal status.
type TaskTerminalError struct {
	TaskID string
	Status TaskStatus
}

// Error returns a string representation of the error.
func (e *TaskTerminalError) Error() string {
	return fmt.Sprintf("task %s already %s, ignoring progress", e.TaskID, e.Status)
}

// ApplyProgress overwrites the task's mutable fields with the event's
// snapshot. The event's progress is clamped to 0-100. Events for a different
// task are rejected, as are events that arrive after a terminal status.
func (t *ScanTask) ApplyProgress(ev ProgressEvent) error {
	if ev.TaskID != "" && ev.TaskID != t.id {
		return fmt.Errorf("progress event for task %s applied to task %s", ev.TaskID, t.id)
	}

	if !t.status.isValidTransition(ev.Status) {
		if t.status.IsTerminal() {
			return &TaskTerminalError{TaskID: t.id, Status: t.status}
		}
		return fmt.Errorf("invalid task status transition from %s to %q", t.status, ev.Status)
	}

	t.status = ev.Status
	t.progress = ClampProgress(ev.Progress)
	t.message = ev.Message
	t.subdomainsCount = ev.SubdomainsCount
	t.liveHostsCount = ev.LiveHostsCount
	t.lastUpdate = time.Now()

	return nil
}

// Snapshot returns the task's current state as a ProgressEvent.
func (t *ScanTask) Snapshot() ProgressEvent {
	return ProgressEvent{
		TaskID:          t.id,
		Status:          t.status,
		Progress:        t.progress,
		Message:         t.message,
		SubdomainsCount: t.subdomainsCount,
		LiveHostsCount:  t.liveHostsCount,
	}
}
