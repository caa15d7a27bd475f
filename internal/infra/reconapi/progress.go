package reconapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
)

// maxTaskBody bounds a polled task document.
const maxTaskBody = 8 << 20

// OpenEventStream opens the server-sent event stream of taskID. The stream is
// not subject to the client's request timeout; it ends when ctx is done or the
// service closes it. The caller must close the returned body.
func (c *Client) OpenEventStream(ctx context.Context, taskID string) (io.ReadCloser, error) {
	ctx, span := c.startSpan(ctx, "reconapi.open_event_stream", attribute.String("task_id", taskID))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint("/task/"+url.PathEscape(taskID)+"/events", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	hc := *c.http
	hc.Timeout = 0

	res, err := hc.Do(req)
	if err != nil {
		recordSpanError(span, err, "open event stream failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		err := parseError(res)
		recordSpanError(span, err, "open event stream failed")
		return nil, err
	}

	return res.Body, nil
}

// PollTask fetches the current status document of taskID without decoding it.
func (c *Client) PollTask(ctx context.Context, taskID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint("/task/"+url.PathEscape(taskID), nil), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, parseError(res)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxTaskBody))
	if err != nil {
		return nil, fmt.Errorf("reading task %s: %w", taskID, err)
	}
	return body, nil
}
