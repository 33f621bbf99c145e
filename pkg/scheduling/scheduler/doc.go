/*
Package scheduler composes the common background-work patterns over a
workerpool.Pool.

Patterns:

  - FanOut submits independent jobs; their results reach the sink in
    completion order
  - RunProgressive runs a cancellable loop that reports progress once per
    iteration and completes with the elapsed time
  - Compute occupies a worker with a single heavy step
  - LoadArtifact fetches and decodes one artifact and hands it to the sink
    as the completion value
  - Every submits a fresh task each time a cron expression fires

Basic Usage:

	text := sink.NewText()
	s, err := scheduler.NewWithConfig(scheduler.Config{WorkerCount: 5, Sink: text})
	if err != nil {
		return err
	}
	defer s.Close(true)

	futures, err := s.FanOut(ctx, scheduler.DemoTasks())
	if err != nil {
		return err
	}
	workerpool.WaitAll(ctx, futures...)
	fmt.Println(text.Text())

Progress and Cancellation:

	fut, _ := s.RunProgressive(ctx, scheduler.Progressive{
		Iterations: 10,
		Interval:   time.Second,
	})
	// later
	fut.Cancel()

The task checks its cancellation token before every iteration, so a
cancelled run reports fewer progress messages and completes as Cancelled.

Cron Expressions:

Every uses a parser with a leading seconds field and accepts descriptors
such as @hourly and @every 1m:

	id, err := s.Every("0 30 * * * *", func() task.Task {
		return task.Func("sync", syncOnce)
	})
	s.Start()
	defer s.Remove(id)

Ownership:

A scheduler built with New uses the caller's pool and never shuts it down.
NewWithConfig without Config.Pool creates a pool that Close shuts down.
*/
package scheduler
