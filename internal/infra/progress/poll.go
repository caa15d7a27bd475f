package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ahrav/reconaug/internal/domain/scanning"
	"github.com/ahrav/reconaug/pkg/common"
	"github.com/ahrav/reconaug/pkg/common/logger"
)

// DefaultPollInterval is the pause between two polls of the task document.
const DefaultPollInterval = time.Second

// TaskPoller fetches the raw status document of a task.
type TaskPoller interface {
	PollTask(ctx context.Context, taskID string) ([]byte, error)
}

// PollSubscriber delivers progress by fetching the task document at a fixed
// interval. The first poll happens immediately. A failed poll ends the
// subscription; retries are left to the caller.
type PollSubscriber struct {
	poller   TaskPoller
	interval time.Duration
	logger   *logger.Logger
}

var _ scanning.ProgressSubscriber = (*PollSubscriber)(nil)

// NewPollSubscriber creates a PollSubscriber. A non-positive interval falls
// back to DefaultPollInterval.
func NewPollSubscriber(poller TaskPoller, interval time.Duration, log *logger.Logger) *PollSubscriber {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollSubscriber{
		poller:   poller,
		interval: interval,
		logger:   log.With("component", "poll_subscriber"),
	}
}

// Subscribe implements scanning.ProgressSubscriber.
func (p *PollSubscriber) Subscribe(
	ctx context.Context,
	taskID string,
	onEvent func(scanning.ProgressEvent),
	onError func(error),
) func() {
	ctx, cancel := context.WithCancel(ctx)

	go p.poll(ctx, taskID, onEvent, onError)

	var once sync.Once
	return func() { once.Do(cancel) }
}

func (p *PollSubscriber) poll(
	ctx context.Context,
	taskID string,
	onEvent func(scanning.ProgressEvent),
	onError func(error),
) {
	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn(ctx, "progress poll failed", "task_id", taskID, "error", err)
		onError(scanning.NewError(scanning.KindChannelError, taskID, err))
	}

	pacer := common.NewPacer(p.interval)
	for {
		if err := pacer.Wait(ctx); err != nil {
			return
		}

		body, err := p.poller.PollTask(ctx, taskID)
		if err != nil {
			fail(fmt.Errorf("polling task: %w", err))
			return
		}

		ev, err := DecodeEvent(taskID, body)
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
