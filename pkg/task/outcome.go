package task

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a task.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Reason qualifies a cancelled outcome.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonCancelled means the cancellation token was set.
	ReasonCancelled
	// ReasonTimeout means the task deadline passed.
	ReasonTimeout
	// ReasonShutdown means the pool dropped the pending task on shutdown.
	ReasonShutdown
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return ""
	case ReasonCancelled:
		return "cancelled"
	case ReasonTimeout:
		return "timeout"
	case ReasonShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Outcome is the terminal result of a task. Exactly one is produced per
// accepted task.
type Outcome struct {
	TaskID   ID
	Label    string
	Status   Status
	Value    any
	Err      error
	Reason   Reason
	Duration time.Duration
	// WorkerID is -1 when the task never reached a worker.
	WorkerID int
}

// Succeeded reports whether the task completed without error.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// Message renders the outcome for display.
func (o Outcome) Message() string {
	name := o.Label
	if name == "" {
		name = string(o.TaskID)
	}

	switch o.Status {
	case StatusSucceeded:
		if o.Value == nil {
			return name + " completed"
		}
		return fmt.Sprint(o.Value)
	case StatusFailed:
		return fmt.Sprintf("%s failed: %v", name, cause(o.Err))
	case StatusCancelled:
		if o.Reason == ReasonTimeout {
			return name + " timed out"
		}
		return name + " cancelled"
	default:
		return fmt.Sprintf("%s %s", name, o.Status)
	}
}

// Kind distinguishes notification types.
type Kind int

const (
	KindProgress Kind = iota
	KindCompleted
)

func (k Kind) String() string {
	if k == KindCompleted {
		return "completed"
	}
	return "progress"
}

// Notification is one delivery to a result sink.
type Notification struct {
	Kind   Kind
	TaskID ID
	Label  string
	// Seq numbers a task's notifications from 1; the completion carries
	// the highest value.
	Seq     int
	Message string
	Outcome Outcome
	At      time.Time
}

// cause strips the pool's task error wrapper so messages do not repeat
// the task name.
func cause(err error) error {
	var wrapped interface {
		TaskName() string
		Unwrap() error
	}
	if errors.As(err, &wrapped) && wrapped.Unwrap() != nil {
		return wrapped.Unwrap()
	}
	return err
}
