package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/taskpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// run starts a runtime, lets submit queue work on it and waits for every
// returned future. Interrupting the command cancels the submitted tasks;
// their cancelled outcomes are still printed.
func (a *app) run(cmd *cobra.Command, submit func(ctx context.Context, rt *runtime) ([]*workerpool.Future, error)) error {
	defer a.teardown()

	ctx := cmd.Context()
	rt, err := a.start(ctx)
	if err != nil {
		return err
	}
	defer rt.close(false)

	start := time.Now()
	futures, err := submit(ctx, rt)
	if _, waitErr := workerpool.WaitAll(context.Background(), futures...); waitErr != nil && err == nil {
		err = waitErr
	}
	if err != nil {
		return err
	}

	a.summary(rt.text, time.Since(start))
	return nil
}

func newTasksCommand(a *app) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Run five independent tasks in parallel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, rt *runtime) ([]*workerpool.Future, error) {
				jobs := scheduler.DemoTasks()
				for i := range jobs {
					jobs[i].Duration = duration
				}
				return rt.sched.FanOut(ctx, jobs)
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 2*time.Second, "how long each task runs")
	return cmd
}

func newBlockCommand(a *app) *cobra.Command {
	var (
		iterations  int
		interval    time.Duration
		cancelAfter time.Duration
	)

	cmd := &cobra.Command{
		Use:   "block",
		Short: "Run a long operation that reports progress every interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, rt *runtime) ([]*workerpool.Future, error) {
				f, err := rt.sched.RunProgressive(ctx, scheduler.Progressive{
					Iterations: iterations,
					Interval:   interval,
				})
				if err != nil {
					return nil, err
				}
				if cancelAfter > 0 {
					timer := time.AfterFunc(cancelAfter, f.Cancel)
					go func() {
						<-f.Done()
						timer.Stop()
					}()
				}
				return []*workerpool.Future{f}, nil
			})
		},
	}
	cmd.Flags().IntVar(&iterations, "iterations", 10, "number of progress steps")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between progress steps")
	cmd.Flags().DurationVar(&cancelAfter, "cancel-after", 0, "cancel the operation after this long (0 never)")
	return cmd
}

func newComputeCommand(a *app) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Run one heavy computation off the calling goroutine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, rt *runtime) ([]*workerpool.Future, error) {
				f, err := rt.sched.Compute(ctx, "", duration)
				if err != nil {
					return nil, err
				}
				return []*workerpool.Future{f}, nil
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "how long the computation runs")
	return cmd
}

// artifact is the decoded form of a loaded file.
type artifact struct {
	Path        string
	ContentType string
	Size        int
}

func (a artifact) String() string {
	return fmt.Sprintf("Loaded %s: %s, %d bytes", a.Path, a.ContentType, a.Size)
}

func readFile(path string) scheduler.FetchArtifact {
	return func(ctx context.Context) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	}
}

func decodeFile(path string) scheduler.Decode {
	return func(data []byte) (any, error) {
		if len(data) == 0 {
			return nil, fmt.Errorf("%s is empty", path)
		}
		return artifact{Path: path, ContentType: http.DetectContentType(data), Size: len(data)}, nil
	}
}

func newLoadCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "load <path>",
		Short: "Load one artifact from disk in the background",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return a.run(cmd, func(ctx context.Context, rt *runtime) ([]*workerpool.Future, error) {
				f, err := rt.sched.LoadArtifact(ctx, scheduler.Load{
					Label:  "Load " + path,
					Fetch:  readFile(path),
					Decode: decodeFile(path),
				})
				if err != nil {
					return nil, err
				}
				return []*workerpool.Future{f}, nil
			})
		},
	}
}

func newDemoCommand(a *app) *cobra.Command {
	var (
		taskDuration    time.Duration
		interval        time.Duration
		computeDuration time.Duration
		every           string
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run every pattern at once on a shared pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, func(ctx context.Context, rt *runtime) ([]*workerpool.Future, error) {
				if every != "" {
					var ticks atomic.Int32
					if _, err := rt.sched.Every(every, func() task.Task {
						return task.Func(fmt.Sprintf("Tick %d", ticks.Add(1)), func(context.Context) (any, error) {
							return time.Now().Format(time.TimeOnly), nil
						})
					}); err != nil {
						return nil, err
					}
					rt.sched.Start()
				}

				jobs := scheduler.DemoTasks()
				for i := range jobs {
					jobs[i].Duration = taskDuration
				}
				futures, err := rt.sched.FanOut(ctx, jobs)
				if err != nil {
					return futures, err
				}

				f, err := rt.sched.RunProgressive(ctx, scheduler.Progressive{Iterations: 10, Interval: interval})
				if err != nil {
					return futures, err
				}
				futures = append(futures, f)

				f, err = rt.sched.Compute(ctx, "", computeDuration)
				if err != nil {
					return futures, err
				}
				return append(futures, f), nil
			})
		},
	}
	cmd.Flags().DurationVar(&taskDuration, "task-duration", 2*time.Second, "how long each parallel task runs")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "time between progress steps of the long operation")
	cmd.Flags().DurationVar(&computeDuration, "compute-duration", 5*time.Second, "how long the computation runs")
	cmd.Flags().StringVar(&every, "every", "", "also submit a tick task on this cron schedule, e.g. \"*/2 * * * * *\"")
	return cmd
}
