/*
Package workerpool provides a bounded worker pool that reports task progress
and completion to a single result sink.

A pool runs a fixed number of worker goroutines over an unbounded FIFO queue.
All notifications go through one delivery goroutine, so the sink is never
called concurrently and sees each task's progress messages in order, followed
by exactly one completion.

Basic usage:

	text := sink.NewText()
	pool := workerpool.New(5, text)
	defer pool.Shutdown(true)

	fut, err := pool.Submit(task.Func("Task 1", func(ctx context.Context) (any, error) {
		return "Task 1: Network operation completed", nil
	}))
	if err != nil {
		log.Printf("Failed to submit: %v", err)
	}

	outcome, _ := fut.Wait(context.Background())
	fmt.Println(outcome.Message())

Outcomes:

Every accepted task produces one task.Outcome:
  - Succeeded when the work returns a nil error
  - Failed when it returns another error or panics; Err is a *errors.TaskError
  - Cancelled when its context was cancelled or its deadline passed, with
    Reason telling which; tasks cancelled while pending never run and
    report WorkerID -1

Cancellation:

The context passed to SubmitWithContext is the task's cancellation token.
Future.Cancel cancels it as well. Work functions must check ctx between
steps; the pool never interrupts a running task.

Timeouts:

Config.TaskTimeout sets a default deadline measured from the moment a worker
picks the task up. task.Task.Timeout overrides it per task. An expired
deadline yields a Cancelled outcome with ReasonTimeout.

Back-pressure:

The pending queue is unbounded and Submit never blocks. The delivery queue
holds Config.DeliveryBuffer notifications; a sink that falls behind
eventually blocks the workers producing them.

Shutdown:

Shutdown(true) drains every queued task. Shutdown(false) completes queued
tasks as cancelled with ReasonShutdown and waits only for running ones.
Both return after the sink has received the last notification. Do not
call Shutdown from inside a sink callback: it waits for the delivery
goroutine that is running the callback.

Metrics:

Set Config.Metrics to a *metrics.Registry to export queue depth, active
workers, outcome counts and durations to Prometheus.
*/
package workerpool
