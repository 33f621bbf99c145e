package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vnykmshr/taskpool/pkg/task"
)

// DefaultHeader is the first line of a Text sink's accumulated text.
const DefaultHeader = "Task Outputs:"

// Text accumulates completion messages as lines of text, in delivery order,
// and keeps the latest progress message as a status line.
//
// Text is the stand-in for a status label in a UI: completions append,
// progress replaces. Reads are safe from any goroutine.
type Text struct {
	mu     sync.Mutex
	header string
	lines  []string
	status string
	echo   io.Writer
}

// TextOption configures a Text sink.
type TextOption func(*Text)

// WithHeader replaces DefaultHeader. An empty header omits the first line.
func WithHeader(header string) TextOption {
	return func(t *Text) { t.header = header }
}

// WithEcho writes every progress and completion line to w as it arrives.
func WithEcho(w io.Writer) TextOption {
	return func(t *Text) { t.echo = w }
}

// NewText creates an empty Text sink.
func NewText(opts ...TextOption) *Text {
	t := &Text{header: DefaultHeader}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnProgress implements Sink.
func (t *Text) OnProgress(_ task.ID, message string) {
	t.mu.Lock()
	t.status = message
	t.mu.Unlock()

	t.write(message)
}

// OnCompleted implements Sink.
func (t *Text) OnCompleted(_ task.ID, outcome task.Outcome) {
	line := outcome.Message()

	t.mu.Lock()
	t.lines = append(t.lines, line)
	t.status = line
	t.mu.Unlock()

	t.write(line)
}

func (t *Text) write(line string) {
	if t.echo != nil {
		fmt.Fprintln(t.echo, line)
	}
}

// Text returns the header followed by every completion line.
func (t *Text) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	parts := make([]string, 0, len(t.lines)+1)
	if t.header != "" {
		parts = append(parts, t.header)
	}
	parts = append(parts, t.lines...)
	return strings.Join(parts, "\n")
}

// Lines returns a copy of the completion lines.
func (t *Text) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

// Status returns the most recent progress or completion message.
func (t *Text) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Reset clears accumulated lines and status.
func (t *Text) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = nil
	t.status = ""
}
