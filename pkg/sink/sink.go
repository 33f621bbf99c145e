// Package sink defines the single-consumer result sink that receives task
// notifications from a worker pool, together with a few ready-made sinks.
//
// A pool calls its sink from exactly one goroutine, so implementations may
// mutate their own state without locking against the pool. They must return
// quickly: while a sink call is running no other notification is delivered,
// and once the pool's delivery buffer fills, workers block.
package sink

import (
	"github.com/vnykmshr/taskpool/pkg/task"
)

// Sink receives ordered notifications for submitted tasks.
type Sink interface {
	// OnProgress is called for each progress message of a running task.
	OnProgress(id task.ID, message string)

	// OnCompleted is called exactly once per task, after all of its
	// progress messages.
	OnCompleted(id task.ID, outcome task.Outcome)
}

// Notifier is implemented by sinks that want the full notification
// envelope (label, sequence number, timestamp) instead of the two callbacks.
type Notifier interface {
	Notify(n task.Notification)
}

// Deliver hands n to s, preferring Notify when s implements Notifier.
func Deliver(s Sink, n task.Notification) {
	if nf, ok := s.(Notifier); ok {
		nf.Notify(n)
		return
	}

	switch n.Kind {
	case task.KindProgress:
		s.OnProgress(n.TaskID, n.Message)
	case task.KindCompleted:
		s.OnCompleted(n.TaskID, n.Outcome)
	}
}

// Funcs adapts plain functions to Sink. Nil fields are ignored.
type Funcs struct {
	Progress  func(id task.ID, message string)
	Completed func(id task.ID, outcome task.Outcome)
}

// OnProgress implements Sink.
func (f Funcs) OnProgress(id task.ID, message string) {
	if f.Progress != nil {
		f.Progress(id, message)
	}
}

// OnCompleted implements Sink.
func (f Funcs) OnCompleted(id task.ID, outcome task.Outcome) {
	if f.Completed != nil {
		f.Completed(id, outcome)
	}
}

type discard struct{}

func (discard) OnProgress(task.ID, string)        {}
func (discard) OnCompleted(task.ID, task.Outcome) {}

// Discard drops every notification.
var Discard Sink = discard{}

// Multi forwards each notification to every sink in order.
type Multi []Sink

// OnProgress implements Sink.
func (m Multi) OnProgress(id task.ID, message string) {
	for _, s := range m {
		s.OnProgress(id, message)
	}
}

// OnCompleted implements Sink.
func (m Multi) OnCompleted(id task.ID, outcome task.Outcome) {
	for _, s := range m {
		s.OnCompleted(id, outcome)
	}
}

// Notify implements Notifier so that members implementing Notifier still
// receive the full envelope.
func (m Multi) Notify(n task.Notification) {
	for _, s := range m {
		Deliver(s, n)
	}
}
