package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// console prints notifications as they are delivered.
type console struct {
	out       io.Writer
	progress  *color.Color
	succeeded *color.Color
	failed    *color.Color
	cancelled *color.Color
}

var _ sink.Sink = (*console)(nil)

func newConsole(out io.Writer) *console {
	return &console{
		out:       out,
		progress:  color.New(color.FgBlue),
		succeeded: color.New(color.FgBlue, color.Bold),
		failed:    color.New(color.FgRed, color.Bold),
		cancelled: color.New(color.FgYellow),
	}
}

func (c *console) OnProgress(_ task.ID, message string) {
	c.progress.Fprintln(c.out, message)
}

func (c *console) OnCompleted(_ task.ID, outcome task.Outcome) {
	switch outcome.Status {
	case task.StatusFailed:
		c.failed.Fprintln(c.out, outcome.Message())
	case task.StatusCancelled:
		c.cancelled.Fprintln(c.out, outcome.Message())
	default:
		c.succeeded.Fprintln(c.out, outcome.Message())
	}
}

func (a *app) summary(text *sink.Text, elapsed time.Duration) {
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, text.Text())
	color.New(color.FgCyan).Fprintf(a.out, "finished in %d ms\n", elapsed.Milliseconds())
}
