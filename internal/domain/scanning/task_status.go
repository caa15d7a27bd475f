package scanning

import (
	"errors"
	"fmt"
	"strings"
)

// TaskStatus represents the lifecycle state of a scan task as reported by the
// recon service.
type TaskStatus string

// ErrTaskStatusUnknown is returned when a task status is unknown.
var ErrTaskStatusUnknown = errors.New("task status unknown")

const (
	// TaskStatusPending indicates the task is queued but has not started.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning indicates the service is actively working on the task.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusComplete indicates the task finished and results can be fetched.
	TaskStatusComplete TaskStatus = "complete"

	// TaskStatusError indicates the task failed on the service side.
	TaskStatusError TaskStatus = "error"
)

// String returns the string representation of the TaskStatus.
func (s TaskStatus) String() string { return string(s) }

// IsTerminal reports whether no further progress can follow this status.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusError
}

// ParseTaskStatus converts a wire value into a TaskStatus. Matching is
// case-insensitive and accepts the past-tense spellings some service versions
// emit.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "queued":
		return TaskStatusPending, nil
	case "running", "in_progress":
		return TaskStatusRunning, nil
	case "complete", "completed":
		return TaskStatusComplete, nil
	case "error", "failed":
		return TaskStatusError, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrTaskStatusUnknown, s)
	}
}

// isValidTransition checks whether a task in status s may move to target.
// Non-terminal states accept any update since events are applied
// last-event-wins. Terminal states accept nothing.
func (s TaskStatus) isValidTransition(target TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning:
		switch target {
		case TaskStatusPending, TaskStatusRunning, TaskStatusComplete, TaskStatusError:
			return true
		}
		return false
	case TaskStatusComplete, TaskStatusError:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
