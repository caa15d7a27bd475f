package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

// number decodes a JSON number or numeric string as a float. Empty strings and
// null decode to zero.
type number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("decoding number from %q: %w", s, err)
		}
		*n = number(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

func (n number) int() int { return int(math.Round(float64(n))) }

// payload is the progress document shared by the event stream and the task
// status endpoint.
type payload struct {
	Status          *string `json:"status"`
	Progress        number  `json:"progress"`
	Message         string  `json:"message"`
	SubdomainsCount number  `json:"subdomains_count"`
	LiveHostsCount  number  `json:"live_hosts_count"`
	Complete        *bool   `json:"complete"`
	Error           string  `json:"error"`

	// Task is set on the completed task document, which nests the status
	// fields under "task" and keeps the counts at the top level.
	Task *payload `json:"task"`
}

// DecodeEvent turns a progress document into a ProgressEvent for taskID.
//
// A document without a status is interpreted leniently: an "error" field means
// the task failed with that message, "complete": true means it finished, and
// anything else is a running update. Fractional progress is rounded and the
// result is clamped to 0-100.
func DecodeEvent(taskID string, data []byte) (scanning.ProgressEvent, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return scanning.ProgressEvent{}, fmt.Errorf("decoding progress event: %w", err)
	}

	if p.Status == nil && p.Task != nil {
		nested := *p.Task
		if p.SubdomainsCount == 0 {
			p.SubdomainsCount = nested.SubdomainsCount
		}
		if p.LiveHostsCount == 0 {
			p.LiveHostsCount = nested.LiveHostsCount
		}
		p.Status, p.Progress, p.Message, p.Complete = nested.Status, nested.Progress, nested.Message, nested.Complete
		if p.Error == "" {
			p.Error = nested.Error
		}
	}

	status, err := resolveStatus(p)
	if err != nil {
		return scanning.ProgressEvent{}, err
	}

	msg := p.Message
	if status == scanning.TaskStatusError && msg == "" {
		msg = p.Error
	}
	progress := scanning.ClampProgress(p.Progress.int())
	if status == scanning.TaskStatusComplete && p.Status == nil && progress == 0 {
		progress = 100
	}

	return scanning.ProgressEvent{
		TaskID:          taskID,
		Status:          status,
		Progress:        progress,
		Message:         msg,
		SubdomainsCount: max(p.SubdomainsCount.int(), 0),
		LiveHostsCount:  max(p.LiveHostsCount.int(), 0),
	}, nil
}

func resolveStatus(p payload) (scanning.TaskStatus, error) {
	complete := p.Complete != nil && *p.Complete

	if p.Status != nil && *p.Status != "" {
		status, err := scanning.ParseTaskStatus(*p.Status)
		if err != nil {
			return "", err
		}
		// A finished flag on a non-terminal status means the service
		// finished without updating the status field.
		if complete && !status.IsTerminal() {
			if p.Error != "" {
				return scanning.TaskStatusError, nil
			}
			return scanning.TaskStatusComplete, nil
		}
		return status, nil
	}

	switch {
	case p.Error != "":
		return scanning.TaskStatusError, nil
	case complete:
		return scanning.TaskStatusComplete, nil
	default:
		return scanning.TaskStatusRunning, nil
	}
}
