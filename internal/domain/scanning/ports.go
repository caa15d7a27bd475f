// Package scanning provides the domain types and interfaces for submitting a
// recon scan, following its progress, and retrieving its result.
package scanning

import "context"

// TaskHandle identifies a scan the service accepted.
type TaskHandle struct {
	TaskID string
	Domain string
}

// ScanSubmitter creates scans on the recon service.
type ScanSubmitter interface {
	// SubmitScan asks the service to scan domain. The domain is trimmed; an
	// empty domain fails with an InvalidInput error and issues no request.
	// Failures are never retried, so a successful call creates exactly one task.
	SubmitScan(ctx context.Context, domain string) (TaskHandle, error)
}

// ResultFetcher retrieves the final result of a completed scan.
type ResultFetcher interface {
	// FetchResult returns the result of the completed task. Failures are
	// reported as ResultFetchFailed errors.
	FetchResult(ctx context.Context, taskID string) (*ScanResult, error)
}

// ProgressSubscriber opens a progress channel for a task. Implementations
// push updates either from a server-sent event stream or by polling.
type ProgressSubscriber interface {
	// Subscribe starts delivering progress for taskID. onEvent and onError are
	// called sequentially from a single goroutine other than the caller's,
	// and may block until the consumer is ready. Delivery stops after a
	// terminal event, after onError, when ctx is done, or when unsubscribe is
	// called. unsubscribe is idempotent and does not wait for an in-flight
	// callback to return.
	Subscribe(
		ctx context.Context,
		taskID string,
		onEvent func(ProgressEvent),
		onError func(error),
	) (unsubscribe func())
}

// ReconService is the full set of calls the scan flow makes against the
// service.
type ReconService interface {
	ScanSubmitter
	ResultFetcher
}
