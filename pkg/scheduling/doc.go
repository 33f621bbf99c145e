/*
Package scheduling groups the task execution packages.

  - workerpool: fixed pool of workers with a single-consumer result sink
  - scheduler: interaction patterns and cron-driven submissions over a pool

Worker Pool:

	pool := workerpool.New(5, sink.NewText())
	defer pool.Shutdown(true)

	f, _ := pool.Submit(task.Func("fetch", fetch))
	outcome, _ := f.Wait(ctx)

Scheduler:

	s := scheduler.New(pool)
	futures, _ := s.FanOut(ctx, scheduler.DemoTasks())
	block, _ := s.RunProgressive(ctx, scheduler.Progressive{Iterations: 10, Interval: time.Second})

Progress and completion notifications for every task reach the sink from
one goroutine, in order per task, with the completion last.
*/
package scheduling
