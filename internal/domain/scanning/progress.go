package scanning

// ProgressEvent is a point-in-time snapshot of a scan task's mutable fields as
// pushed by the recon service. Events carry no sequence number; consumers apply
// them in receipt order and the last one wins.
type ProgressEvent struct {
	TaskID          string
	Status          TaskStatus
	Progress        int
	Message         string
	SubdomainsCount int
	LiveHostsCount  int
}

// IsTerminal reports whether the event ends the task's observation.
func (e ProgressEvent) IsTerminal() bool { return e.Status.IsTerminal() }

// ClampProgress bounds a percentage to the 0-100 range.
func ClampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
