package scheduler

import (
	"context"
	"fmt"
	"time"

	tpcontext "github.com/vnykmshr/taskpool/pkg/common/context"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// Job is one independent task of a fan-out.
type Job struct {
	Label    string
	Result   string
	Duration time.Duration
}

// DemoTasks returns the five classic background jobs, two seconds each.
func DemoTasks() []Job {
	results := []string{
		"Network operation completed",
		"Calculation completed",
		"File operation completed",
		"Data parsing completed",
		"Logging completed",
	}

	jobs := make([]Job, len(results))
	for i, r := range results {
		jobs[i] = Job{
			Label:    fmt.Sprintf("Task %d", i+1),
			Result:   r,
			Duration: 2 * time.Second,
		}
	}
	return jobs
}

// FanOut submits every job as an independent task. Each sleeps for its
// Duration and completes with "<Label>: <Result>"; completions reach the
// sink in the order the workers finish, not the order of jobs.
//
// On a submission error the futures accepted so far are returned with it.
func (s *Scheduler) FanOut(ctx context.Context, jobs []Job) ([]*workerpool.Future, error) {
	futures := make([]*workerpool.Future, 0, len(jobs))
	for _, job := range jobs {
		job := job
		t := task.Func(job.Label, func(ctx context.Context) (any, error) {
			if err := tpcontext.Sleep(ctx, job.Duration); err != nil {
				return nil, err
			}
			return job.Label + ": " + job.Result, nil
		}, task.WithCost(job.Duration))

		f, err := s.pool.SubmitWithContext(ctx, t)
		if err != nil {
			return futures, fmt.Errorf("fan-out %q: %w", job.Label, err)
		}
		futures = append(futures, f)
	}

	s.logger.Infow("fan-out submitted", "tasks", len(futures))
	return futures, nil
}

// ComputeStep performs iteration i (from 1) of a progressive task.
type ComputeStep func(ctx context.Context, i int) error

// Progressive describes a long-running task that reports progress once
// per iteration.
type Progressive struct {
	Label      string
	Iterations int
	Interval   time.Duration

	// Step runs after each interval. Optional.
	Step ComputeStep

	// Format renders the progress message of iteration i.
	// Default: "Simulated block #<i>".
	Format func(i int) string
}

// Elapsed is the completion value of a progressive task.
type Elapsed struct {
	Duration time.Duration
}

func (e Elapsed) String() string {
	return fmt.Sprintf("Simulated long operation finished in %d ms", e.Duration.Milliseconds())
}

// RunProgressive submits a task that runs p.Iterations iterations. Each
// iteration checks the cancellation token, waits p.Interval, runs p.Step
// and reports one progress message. A cancelled task stops at the next
// check and completes as Cancelled with fewer progress messages.
func (s *Scheduler) RunProgressive(ctx context.Context, p Progressive) (*workerpool.Future, error) {
	if err := validation.ValidatePositive("scheduler", "Iterations", p.Iterations); err != nil {
		return nil, err
	}
	if err := validation.ValidateDuration("scheduler", "Interval", p.Interval); err != nil {
		return nil, err
	}

	label := p.Label
	if label == "" {
		label = "Long operation"
	}
	format := p.Format
	if format == nil {
		format = func(i int) string { return fmt.Sprintf("Simulated block #%d", i) }
	}

	t := task.New(label, func(ctx context.Context, progress task.Progress) (any, error) {
		start := time.Now()
		for i := 1; i <= p.Iterations; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := tpcontext.Sleep(ctx, p.Interval); err != nil {
				return nil, err
			}
			if p.Step != nil {
				if err := p.Step(ctx, i); err != nil {
					return nil, fmt.Errorf("iteration %d: %w", i, err)
				}
			}
			progress.Report(format(i))
		}
		return Elapsed{Duration: time.Since(start)}, nil
	}, task.WithCost(time.Duration(p.Iterations)*p.Interval))

	f, err := s.pool.SubmitWithContext(ctx, t)
	if err != nil {
		return nil, err
	}
	s.logger.Infow("progressive task submitted", "task_id", f.ID(), "iterations", p.Iterations)
	return f, nil
}

// Computation is the completion value of Compute.
type Computation struct {
	Duration time.Duration
}

func (c Computation) String() string {
	return fmt.Sprintf("Computation finished in %d ms.", c.Duration.Milliseconds())
}

// Compute submits a single heavy step that occupies a worker for d.
func (s *Scheduler) Compute(ctx context.Context, label string, d time.Duration) (*workerpool.Future, error) {
	if err := validation.ValidateDuration("scheduler", "duration", d); err != nil {
		return nil, err
	}
	if label == "" {
		label = "Computation"
	}

	t := task.Func(label, func(ctx context.Context) (any, error) {
		start := time.Now()
		if err := tpcontext.Sleep(ctx, d); err != nil {
			return nil, err
		}
		return Computation{Duration: time.Since(start)}, nil
	}, task.WithCost(d))

	return s.pool.SubmitWithContext(ctx, t)
}

// FetchArtifact retrieves the raw bytes of an artifact.
type FetchArtifact func(ctx context.Context) ([]byte, error)

// Decode turns fetched bytes into the artifact handed to the sink.
type Decode func(data []byte) (any, error)

// Load describes a single fetch-and-decode task.
type Load struct {
	Label string
	Fetch FetchArtifact

	// Decode is optional; without it the raw bytes are the artifact.
	Decode Decode
}

// LoadArtifact submits a task that fetches and decodes one artifact. On
// success the decoded artifact is the completion value, so the sink
// receives it exactly once. Fetch and decode errors fail the task.
func (s *Scheduler) LoadArtifact(ctx context.Context, l Load) (*workerpool.Future, error) {
	if err := validation.ValidateNotNil("scheduler", "Fetch", l.Fetch == nil); err != nil {
		return nil, err
	}

	label := l.Label
	if label == "" {
		label = "Load artifact"
	}

	t := task.Func(label, func(ctx context.Context) (any, error) {
		data, err := l.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch artifact: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.Decode == nil {
			return data, nil
		}
		artifact, err := l.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode artifact: %w", err)
		}
		return artifact, nil
	})

	return s.pool.SubmitWithContext(ctx, t)
}
