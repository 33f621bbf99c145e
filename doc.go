/*
Package taskpool runs background tasks on a bounded worker pool and reports
their progress and results to a single result sink.

Tasks (pkg/task):
  - Task, Work and Progress: a unit of work that may report progress
  - Outcome and Notification: what the sink receives

Scheduling (pkg/scheduling):
  - workerpool: bounded concurrency, FIFO start order, cancellation, timeouts
  - scheduler: fan-out, progressive and single-artifact patterns, cron submissions

Sinks (pkg/sink):
  - Text, Channel, Funcs and Multi
  - redissink: Redis pub/sub
  - eventsink: Watermill publishers
  - journal: JSON lines appended to a file

Supporting packages:
  - metrics: Prometheus instrumentation
  - ratelimit/bucket: token bucket used to throttle progress

Example usage:

	import (
		"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
		"github.com/vnykmshr/taskpool/pkg/sink"
		"github.com/vnykmshr/taskpool/pkg/task"
	)

	text := sink.NewText()
	pool := workerpool.New(5, text)

	pool.Submit(task.New("import", func(ctx context.Context, p task.Progress) (any, error) {
		p.Report("halfway")
		return "imported 42 rows", nil
	}))

	pool.Shutdown(true)
	fmt.Println(text.Text())

The taskpool command (cmd/taskpool) exposes the same patterns from the
command line.
*/
package taskpool
