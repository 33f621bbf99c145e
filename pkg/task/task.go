// Package task defines the units of work accepted by the worker pool and the
// outcomes and notifications it produces for them.
package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ID identifies a submitted task.
type ID string

// NewID returns a random task ID.
func NewID() ID {
	return ID(uuid.NewString())
}

func (id ID) String() string {
	return string(id)
}

// Progress emits intermediate notifications for the running task.
// Messages are delivered in call order, before the task's completion.
type Progress interface {
	Report(message string)
}

// ProgressFunc adapts a function to the Progress interface.
type ProgressFunc func(message string)

// Report implements Progress.
func (f ProgressFunc) Report(message string) {
	f(message)
}

// NoProgress discards progress messages.
var NoProgress Progress = ProgressFunc(func(string) {})

// Work is the computation carried by a Task. It should return promptly once
// ctx is done; ctx is the task's cancellation token.
type Work func(ctx context.Context, progress Progress) (any, error)

// Task is one unit of submitted work. It is treated as immutable once
// handed to a pool.
type Task struct {
	// ID is assigned by New when not set explicitly.
	ID ID

	// Label is a human-readable name used in diagnostics and sink output.
	Label string

	// Work is the computation to run. Required.
	Work Work

	// Timeout bounds execution. Zero falls back to the pool default.
	Timeout time.Duration

	// Cost is the estimated or simulated duration, informational only.
	Cost time.Duration
}

// Option customizes a Task built by New.
type Option func(*Task)

// WithID sets an explicit task ID.
func WithID(id ID) Option {
	return func(t *Task) { t.ID = id }
}

// WithTimeout sets a per-task deadline.
func WithTimeout(d time.Duration) Option {
	return func(t *Task) { t.Timeout = d }
}

// WithCost records the estimated duration of the task.
func WithCost(d time.Duration) Option {
	return func(t *Task) { t.Cost = d }
}

// New builds a Task with a fresh ID.
func New(label string, work Work, opts ...Option) Task {
	t := Task{
		ID:    NewID(),
		Label: label,
		Work:  work,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Func builds a Task from a plain function with no progress reporting.
func Func(label string, fn func(ctx context.Context) (any, error), opts ...Option) Task {
	return New(label, func(ctx context.Context, _ Progress) (any, error) {
		return fn(ctx)
	}, opts...)
}

// Name returns the label, or the ID when the label is empty.
func (t Task) Name() string {
	if t.Label != "" {
		return t.Label
	}
	return string(t.ID)
}
