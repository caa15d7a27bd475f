package reconapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ahrav/reconaug/internal/domain/scanning"
)

var _ scanning.ReconService = (*Client)(nil)

// SubmitScan creates a scan for domain. It issues exactly one request and
// never retries; any transport failure or non-2xx answer is reported as a
// SubmissionFailed error wrapping the cause.
func (c *Client) SubmitScan(ctx context.Context, domain string) (scanning.TaskHandle, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return scanning.TaskHandle{}, scanning.NewError(
			scanning.KindInvalidInput, "", errors.New("domain is required"),
		)
	}

	ctx, span := c.startSpan(ctx, "reconapi.submit_scan", attribute.String("domain", domain))
	defer span.End()

	var resp submitResponse
	if err := c.postForm(ctx, "/scan", url.Values{"domain": {domain}}, &resp); err != nil {
		recordSpanError(span, err, "submit scan failed")
		c.logger.Warn(ctx, "scan submission failed", "domain", domain, "error", err)
		return scanning.TaskHandle{}, scanning.NewError(scanning.KindSubmissionFailed, "", err)
	}

	if resp.TaskID == "" {
		err := errors.New("response missing task_id")
		recordSpanError(span, err, "submit scan failed")
		return scanning.TaskHandle{}, scanning.NewError(scanning.KindSubmissionFailed, "", err)
	}

	span.SetAttributes(attribute.String("task_id", resp.TaskID))
	span.SetStatus(codes.Ok, "scan submitted")
	c.logger.Info(ctx, "scan submitted", "domain", domain, "task_id", resp.TaskID)

	return scanning.TaskHandle{TaskID: resp.TaskID, Domain: domain}, nil
}

// FetchResult retrieves the result of a completed task. A response that
// carries no result payload, a 404, or any other failure is reported as a
// ResultFetchFailed error.
func (c *Client) FetchResult(ctx context.Context, taskID string) (*scanning.ScanResult, error) {
	if taskID == "" {
		return nil, scanning.NewError(scanning.KindInvalidInput, "", errors.New("task id is required"))
	}

	ctx, span := c.startSpan(ctx, "reconapi.fetch_result", attribute.String("task_id", taskID))
	defer span.End()

	var resp taskResultResponse
	if err := c.getJSON(ctx, "/task/"+url.PathEscape(taskID), nil, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.NotFound() {
			err = fmt.Errorf("%w: %w", scanning.ErrTaskNotFound, err)
		}
		recordSpanError(span, err, "fetch result failed")
		return nil, scanning.NewError(scanning.KindResultFetchFailed, taskID, err)
	}

	if resp.Subdomains == nil {
		err := fmt.Errorf("task %s has no result payload (status %q)", taskID, resp.Status)
		recordSpanError(span, err, "fetch result failed")
		return nil, scanning.NewError(scanning.KindResultFetchFailed, taskID, err)
	}

	result := resp.toDomain()
	span.SetAttributes(
		attribute.Int("subdomains", result.SubdomainsCount()),
		attribute.Int("live_hosts", result.LiveHostsCount()),
	)
	span.SetStatus(codes.Ok, "result fetched")

	return result, nil
}
