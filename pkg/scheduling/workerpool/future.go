package workerpool

import (
	"context"

	"github.com/vnykmshr/taskpool/pkg/task"
)

// Future is the handle returned by Submit. It resolves after the pool's
// sink has observed the task's completion.
type Future struct {
	id     task.ID
	label  string
	cancel context.CancelFunc
	done   chan struct{}

	// outcome is written once before done is closed.
	outcome task.Outcome
}

func newFuture(id task.ID, label string, cancel context.CancelFunc) *Future {
	return &Future{
		id:     id,
		label:  label,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the task ID.
func (f *Future) ID() task.ID {
	return f.id
}

// Label returns the task label.
func (f *Future) Label() string {
	return f.label
}

// Done returns a channel that is closed when the outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome returns the outcome without blocking. The boolean is false while
// the task is still pending or running.
func (f *Future) Outcome() (task.Outcome, bool) {
	select {
	case <-f.done:
		return f.outcome, true
	default:
		return task.Outcome{}, false
	}
}

// Wait blocks until the outcome is available or ctx is done. Cancelling ctx
// does not cancel the task; use Cancel for that.
func (f *Future) Wait(ctx context.Context) (task.Outcome, error) {
	select {
	case <-f.done:
		return f.outcome, nil
	case <-ctx.Done():
		return task.Outcome{}, ctx.Err()
	}
}

// Cancel sets the task's cancellation token. A pending task completes as
// cancelled without running; a running task observes ctx.Done().
// It has no effect once the task has completed.
func (f *Future) Cancel() {
	f.cancel()
}

func (f *Future) resolve(o task.Outcome) {
	f.outcome = o
	close(f.done)
}

// WaitAll waits for every future in order and returns their outcomes.
func WaitAll(ctx context.Context, futures ...*Future) ([]task.Outcome, error) {
	outcomes := make([]task.Outcome, 0, len(futures))
	for _, f := range futures {
		o, err := f.Wait(ctx)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
