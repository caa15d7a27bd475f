// Package progress implements the two progress channels of a scan task: a
// server-sent event stream and interval polling of the task status document.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

// ErrStreamClosed is reported when the event stream ends before the task
// reached a terminal status.
var ErrStreamClosed = errors.New("event stream closed before task finished")

// EventStreamOpener opens the event stream of a task.
type EventStreamOpener interface {
	OpenEventStream(ctx context.Context, taskID string) (io.ReadCloser, error)
}

// SSESubscriber delivers progress from the service's event stream.
type SSESubscriber struct {
	opener EventStreamOpener
	logger *logger.Logger
}

var _ scanning.ProgressSubscriber = (*SSESubscriber)(nil)

// NewSSESubscriber creates an SSESubscriber.
func NewSSESubscriber(opener EventStreamOpener, log *logger.Logger) *SSESubscriber {
	return &SSESubscriber{
		opener: opener,
		logger: log.With("component", "sse_subscriber"),
	}
}

// Subscribe implements scanning.ProgressSubscriber.
func (s *SSESubscriber) Subscribe(
	ctx context.Context,
	taskID string,
	onEvent func(scanning.ProgressEvent),
	onError func(error),
) func() {
	ctx, cancel := context.WithCancel(ctx)

	go s.stream(ctx, taskID, onEvent, onError)

	var once sync.Once
	return func() { once.Do(cancel) }
}

func (s *SSESubscriber) stream(
	ctx context.Context,
	taskID string,
	onEvent func(scanning.ProgressEvent),
	onError func(error),
) {
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn(ctx, "progress stream failed", "task_id", taskID, "error", err)
		onError(scanning.NewError(scanning.KindChannelError, taskID, err))
	}

	body, err := s.opener.OpenEventStream(ctx, taskID)
	if err != nil {
		fail(fmt.Errorf("opening event stream: %w", err))
		return
	}
	defer body.Close()

	// Closing the body unblocks a read parked on an idle connection.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	s.logger.Debug(ctx, "progress stream opened", "task_id", taskID)

	r := newEventStreamReader(body)
	for {
		f, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			}
			fail(err)
			return
		}

		ev, err := DecodeEvent(taskID, []byte(f.Data))
		if err != nil {
			fail(err)
			return
		}

		if ctx.Err() != nil {
			return
		}
		onEvent(ev)

		if ev.IsTerminal() {
			return
		}
	}
}
