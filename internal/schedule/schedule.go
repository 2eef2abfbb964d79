// Package schedule runs a function on a fixed interval until stopped.
package schedule

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Task is a repeating job. Runs never overlap: each tick is handled on the
// task's own goroutine, and ticks that arrive while a run is still going are
// dropped by the ticker.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Every calls fn immediately and then once per interval until ctx is
// cancelled or Stop is called.
func Every(ctx context.Context, clock clockwork.Clock, interval time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)

		ticker := clock.NewTicker(interval)
		defer ticker.Stop()

		fn(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				fn(ctx)
			}
		}
	}()

	return t
}

// Stop cancels the timer and waits for a run in progress to return.
func (t *Task) Stop() {
	t.cancel()
	<-t.done
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}
