package scanning

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of a scan attempt. Every kind is terminal for
// the current attempt.
type ErrorKind string

const (
	// KindInvalidInput means the request was rejected before any network call.
	KindInvalidInput ErrorKind = "INVALID_INPUT"

	// KindSubmissionFailed means the scan could not be created on the service.
	KindSubmissionFailed ErrorKind = "SUBMISSION_FAILED"

	// KindChannelError means the progress channel failed or went silent.
	KindChannelError ErrorKind = "CHANNEL_ERROR"

	// KindTaskError means the service reported the task as failed.
	KindTaskError ErrorKind = "TASK_ERROR"

	// KindResultFetchFailed means the task completed but its result could not
	// be retrieved.
	KindResultFetchFailed ErrorKind = "RESULT_FETCH_FAILED"
)

// String returns the string representation of the ErrorKind.
func (k ErrorKind) String() string { return string(k) }

// Sentinels for errors.Is checks by kind.
var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrSubmissionFailed  = &Error{Kind: KindSubmissionFailed}
	ErrChannelError      = &Error{Kind: KindChannelError}
	ErrTaskError         = &Error{Kind: KindTaskError}
	ErrResultFetchFailed = &Error{Kind: KindResultFetchFailed}
)

// ErrIdleTimeout is wrapped in a channel error when no progress event arrives
// within the idle window.
var ErrIdleTimeout = errors.New("no progress received within idle timeout")

// ErrTaskNotFound is returned when the service has no record of a task.
var ErrTaskNotFound = errors.New("task not found")

// Error is the single error type surfaced to callers of the scan flow.
type Error struct {
	Kind   ErrorKind
	TaskID string
	// Message is the service-provided reason, when there is one.
	Message string
	Err     error
}

// NewError builds an Error of the given kind wrapping err.
func NewError(kind ErrorKind, taskID string, err error) *Error {
	return &Error{Kind: kind, TaskID: taskID, Err: err}
}

// NewTaskError builds a TaskError carrying the service's failure message.
func NewTaskError(taskID, message string) *Error {
	return &Error{Kind: KindTaskError, TaskID: taskID, Message: message}
}

// Error returns a string representation of the error.
func (e *Error) Error() string {
	msg := kindText(e.Kind)
	if e.TaskID != "" {
		msg = fmt.Sprintf("%s (task %s)", msg, e.TaskID)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage returns the text shown to a person for this failure.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindInvalidInput:
		return "Please enter a domain."
	case KindSubmissionFailed:
		return "An error occurred while starting the scan. Please try again."
	case KindChannelError:
		if errors.Is(e.Err, ErrIdleTimeout) {
			return "The scan stopped reporting progress. Please try again."
		}
		return "Lost connection to the scan progress stream. Please try again."
	case KindTaskError:
		if e.Message != "" {
			return "Error: " + e.Message
		}
		return "The scan failed on the server."
	case KindResultFetchFailed:
		return "An error occurred while fetching results. Please try again."
	default:
		return "An unexpected error occurred."
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// UserMessage returns the user-facing text for any error, falling back to a
// generic message for errors outside the scan taxonomy.
func UserMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	return "An unexpected error occurred."
}

func kindText(k ErrorKind) string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindSubmissionFailed:
		return "scan submission failed"
	case KindChannelError:
		return "progress channel error"
	case KindTaskError:
		return "scan task failed"
	case KindResultFetchFailed:
		return "result fetch failed"
	default:
		return "scan error"
	}
}
