package progress

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/internal/infra/reconapi"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

// recorder collects subscriber callbacks.
type recorder struct {
	events chan scanning.ProgressEvent
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{
		events: make(chan scanning.ProgressEvent, 64),
		errs:   make(chan error, 8),
	}
}

func (r *recorder) onEvent(ev scanning.ProgressEvent) { r.events <- ev }
func (r *recorder) onError(err error)                 { r.errs <- err }

func (r *recorder) nextEvent(t *testing.T) scanning.ProgressEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case err := <-r.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return scanning.ProgressEvent{}
}

func (r *recorder) nextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case ev := <-r.events:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
	}
	return nil
}

func (r *recorder) assertQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected event: %+v", ev)
	case err := <-r.errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(d):
	}
}

func sseServer(t *testing.T, h func(w http.ResponseWriter, r *http.Request, flush func())) *reconapi.Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		h(w, r, func() {
			if flusher != nil {
				flusher.Flush()
			}
		})
	}))
	t.Cleanup(srv.Close)

	c, err := reconapi.NewClient(srv.URL, logger.Noop(), reconapi.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestSSESubscriber_DeliversUntilTerminal(t *testing.T) {
	t.Parallel()

	api := sseServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		assert.Equal(t, "/task/t1/events", r.URL.Path)
		fmt.Fprint(w, ": hello\n\n")
		fmt.Fprint(w, "data: {\"status\":\"running\",\"progress\":10,\"message\":\"Enumerating\"}\n\n")
		flush()
		fmt.Fprint(w, "data: {\"status\":\"complete\",\"progress\":100,\"subdomains_count\":5,\"live_hosts_count\":2}\n\n")
		// Anything after the terminal event must be ignored.
		fmt.Fprint(w, "data: {\"status\":\"complete\",\"progress\":100}\n\n")
		flush()
	})

	rec := newRecorder()
	sub := NewSSESubscriber(api, logger.Noop())
	unsubscribe := sub.Subscribe(context.Background(), "t1", rec.onEvent, rec.onError)
	defer unsubscribe()

	first := rec.nextEvent(t)
	assert.Equal(t, scanning.TaskStatusRunning, first.Status)
	assert.Equal(t, 10, first.Progress)

	last := rec.nextEvent(t)
	assert.Equal(t, scanning.ProgressEvent{
		TaskID: "t1", Status: scanning.TaskStatusComplete, Progress: 100, SubdomainsCount: 5, LiveHostsCount: 2,
	}, last)

	rec.assertQuiet(t, 100*time.Millisecond)
}

func TestSSESubscriber_EOFBeforeTerminal(t *testing.T) {
	t.Parallel()

	api := sseServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		fmt.Fprint(w, "data: {\"status\":\"running\",\"progress\":10}\n\n")
		flush()
	})

	rec := newRecorder()
	unsubscribe := NewSSESubscriber(api, logger.Noop()).Subscribe(context.Background(), "t1", rec.onEvent, rec.onError)
	defer unsubscribe()

	assert.Equal(t, 10, rec.nextEvent(t).Progress)

	err := rec.nextError(t)
	assert.ErrorIs(t, err, scanning.ErrChannelError)
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestSSESubscriber_MalformedFrame(t *testing.T) {
	t.Parallel()

	api := sseServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
		fmt.Fprint(w, "data: {'status': 'running'}\n\n")
		flush()
	})

	rec := newRecorder()
	unsubscribe := NewSSESubscriber(api, logger.Noop()).Subscribe(context.Background(), "t1", rec.onEvent, rec.onError)
	defer unsubscribe()

	assert.ErrorIs(t, rec.nextError(t), scanning.ErrChannelError)
}

func TestSSESubscriber_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Task not found"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	api, err := reconapi.NewClient(srv.URL, logger.Noop())
	require.NoError(t, err)

	rec := newRecorder()
	unsubscribe := NewSSESubscriber(api, logger.Noop()).Subscribe(context.Background(), "t1", rec.onEvent, rec.onError)
	defer unsubscribe()

	err = rec.nextError(t)
	assert.ErrorIs(t, err, scanning.ErrChannelError)

	var se *reconapi.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

// pipeOpener serves the read side of a pipe as the event stream.
type pipeOpener struct {
	r *io.PipeReader
}

func (p pipeOpener) OpenEventStream(context.Context, string) (io.ReadCloser, error) {
	return p.r, nil
}

func TestSSESubscriber_UnsubscribeIsSilent(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	rec := newRecorder()
	unsubscribe := NewSSESubscriber(pipeOpener{r: pr}, logger.Noop()).Subscribe(context.Background(), "t1", rec.onEvent, rec.onError)

	_, err := fmt.Fprint(pw, "data: {\"status\":\"running\",\"progress\":1}\n\n")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.nextEvent(t).Progress)

	unsubscribe()
	unsubscribe()

	// The blocked read is released by closing the body; no error is reported.
	rec.assertQuiet(t, 200*time.Millisecond)
}

func TestSSESubscriber_ContextCancelIsSilent(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	unsubscribe := NewSSESubscriber(pipeOpener{r: pr}, logger.Noop()).Subscribe(ctx, "t1", rec.onEvent, rec.onError)
	defer unsubscribe()

	cancel()
	rec.assertQuiet(t, 200*time.Millisecond)
}
