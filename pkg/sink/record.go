package sink

import (
	"encoding/json"
	"time"

	"github.com/vnykmshr/taskpool/pkg/task"
)

// Record is the JSON wire form of a notification used by the publishing
// sinks.
type Record struct {
	Kind       string    `json:"kind"`
	TaskID     string    `json:"task_id"`
	Label      string    `json:"label,omitempty"`
	Seq        int       `json:"seq"`
	Message    string    `json:"message"`
	Status     string    `json:"status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	WorkerID   *int      `json:"worker_id,omitempty"`
	At         time.Time `json:"at"`
}

// NewRecord converts a notification to its wire form.
func NewRecord(n task.Notification) Record {
	r := Record{
		Kind:    n.Kind.String(),
		TaskID:  string(n.TaskID),
		Label:   n.Label,
		Seq:     n.Seq,
		Message: n.Message,
		At:      n.At,
	}

	if n.Kind == task.KindCompleted {
		o := n.Outcome
		r.Status = o.Status.String()
		r.Reason = o.Reason.String()
		r.DurationMS = o.Duration.Milliseconds()
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		if o.WorkerID >= 0 {
			worker := o.WorkerID
			r.WorkerID = &worker
		}
	}

	return r
}

// Encode marshals the wire form of n.
func Encode(n task.Notification) ([]byte, error) {
	return json.Marshal(NewRecord(n))
}

// FromCallback rebuilds a notification for sinks invoked through the plain
// Sink callbacks rather than Notify.
func FromCallback(kind task.Kind, id task.ID, message string, outcome task.Outcome) task.Notification {
	n := task.Notification{Kind: kind, TaskID: id, Message: message, At: time.Now()}
	if kind == task.KindCompleted {
		n.Label = outcome.Label
		n.Message = outcome.Message()
		n.Outcome = outcome
	}
	return n
}
