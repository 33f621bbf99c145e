package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/taskpool/internal/testutil"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

func await(f *workerpool.Future) task.Outcome {
	GinkgoHelper()
	Eventually(f.Done(), 5*time.Second).Should(BeClosed())
	o, ok := f.Outcome()
	Expect(ok).To(BeTrue())
	return o
}

var _ = Describe("Scheduler", func() {
	var (
		ctx  context.Context
		rec  *testutil.Recorder
		pool *workerpool.Pool
		s    *scheduler.Scheduler
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = testutil.NewRecorder()
		pool = workerpool.New(5, rec)
		s = scheduler.New(pool)
	})

	AfterEach(func() {
		s.Close(false)
		pool.Shutdown(false)
	})

	Describe("DemoTasks", func() {
		It("should describe the five classic jobs", func() {
			jobs := scheduler.DemoTasks()
			Expect(jobs).To(HaveLen(5))
			Expect(jobs[0]).To(Equal(scheduler.Job{
				Label:    "Task 1",
				Result:   "Network operation completed",
				Duration: 2 * time.Second,
			}))
			Expect(jobs[4].Label).To(Equal("Task 5"))
			Expect(jobs[4].Result).To(Equal("Logging completed"))
		})
	})

	Describe("FanOut", func() {
		It("should run jobs in parallel and deliver every labelled result", func() {
			jobs := scheduler.DemoTasks()
			for i := range jobs {
				jobs[i].Duration = 200 * time.Millisecond
			}

			start := time.Now()
			futures, err := s.FanOut(ctx, jobs)
			Expect(err).NotTo(HaveOccurred())
			Expect(futures).To(HaveLen(5))

			outcomes, err := workerpool.WaitAll(ctx, futures...)
			Expect(err).NotTo(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", 800*time.Millisecond))

			for i, o := range outcomes {
				Expect(o.Status).To(Equal(task.StatusSucceeded))
				Expect(o.Value).To(Equal(fmt.Sprintf("%s: %s", jobs[i].Label, jobs[i].Result)))
			}
			Expect(rec.Outcomes()).To(HaveLen(5))
			Expect(rec.Overlaps()).To(BeZero())
		})

		It("should append completions to a text sink", func() {
			text := sink.NewText()
			own, err := scheduler.NewWithConfig(scheduler.Config{WorkerCount: 2, Sink: text})
			Expect(err).NotTo(HaveOccurred())

			futures, err := own.FanOut(ctx, []scheduler.Job{
				{Label: "A", Result: "slow", Duration: 50 * time.Millisecond},
				{Label: "B", Result: "fast"},
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = workerpool.WaitAll(ctx, futures...)
			Expect(err).NotTo(HaveOccurred())
			own.Close(true)

			Expect(text.Lines()).To(Equal([]string{"B: fast", "A: slow"}))
			Expect(text.Text()).To(HavePrefix(sink.DefaultHeader))
		})

		It("should return accepted futures with a submission error", func() {
			pool.Shutdown(true)

			futures, err := s.FanOut(ctx, scheduler.DemoTasks())
			Expect(errors.Is(err, tperrors.ErrPoolClosed)).To(BeTrue())
			Expect(futures).To(BeEmpty())
		})
	})

	Describe("RunProgressive", func() {
		It("should report one progress per iteration, then complete", func() {
			f, err := s.RunProgressive(ctx, scheduler.Progressive{
				Iterations: 10,
				Interval:   5 * time.Millisecond,
			})
			Expect(err).NotTo(HaveOccurred())

			o := await(f)
			Expect(o.Status).To(Equal(task.StatusSucceeded))
			Expect(o.Value).To(BeAssignableToTypeOf(scheduler.Elapsed{}))
			Expect(o.Message()).To(MatchRegexp(`^Simulated long operation finished in \d+ ms$`))

			notes := rec.ForTask(f.ID())
			Expect(notes).To(HaveLen(11))
			for i, n := range notes[:10] {
				Expect(n.Kind).To(Equal(task.KindProgress))
				Expect(n.Message).To(Equal(fmt.Sprintf("Simulated block #%d", i+1)))
			}
			Expect(notes[10].Kind).To(Equal(task.KindCompleted))
		})

		It("should stop early when cancelled", func() {
			var steps atomic.Int32
			f, err := s.RunProgressive(ctx, scheduler.Progressive{
				Label:      "Block UI",
				Iterations: 10,
				Interval:   20 * time.Millisecond,
				Step: func(ctx context.Context, i int) error {
					steps.Add(1)
					return nil
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(steps.Load, time.Second).Should(BeNumerically(">=", 2))
			f.Cancel()

			o := await(f)
			Expect(o.Status).To(Equal(task.StatusCancelled))
			Expect(o.Reason).To(Equal(task.ReasonCancelled))

			progress := 0
			for _, n := range rec.ForTask(f.ID()) {
				if n.Kind == task.KindProgress {
					progress++
				}
			}
			Expect(progress).To(BeNumerically("<", 10))
		})

		It("should fail when a step fails", func() {
			f, err := s.RunProgressive(ctx, scheduler.Progressive{
				Iterations: 5,
				Step: func(ctx context.Context, i int) error {
					if i == 3 {
						return errors.New("disk full")
					}
					return nil
				},
				Format: func(i int) string { return fmt.Sprintf("step %d", i) },
			})
			Expect(err).NotTo(HaveOccurred())

			o := await(f)
			Expect(o.Status).To(Equal(task.StatusFailed))
			Expect(o.Err).To(MatchError(ContainSubstring("iteration 3: disk full")))
			Expect(rec.ForTask(f.ID())).To(HaveLen(3))
		})

		It("should reject invalid iteration counts", func() {
			_, err := s.RunProgressive(ctx, scheduler.Progressive{Iterations: 0})
			Expect(tperrors.IsValidationError(err)).To(BeTrue())
		})
	})

	Describe("Compute", func() {
		It("should report the computation time", func() {
			f, err := s.Compute(ctx, "", 10*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())

			o := await(f)
			Expect(o.Label).To(Equal("Computation"))
			Expect(o.Message()).To(MatchRegexp(`^Computation finished in \d+ ms\.$`))
		})
	})

	Describe("LoadArtifact", func() {
		It("should hand the decoded artifact to the sink once", func() {
			f, err := s.LoadArtifact(ctx, scheduler.Load{
				Label: "Load image",
				Fetch: func(ctx context.Context) ([]byte, error) { return []byte{1, 2, 3}, nil },
				Decode: func(data []byte) (any, error) {
					return len(data), nil
				},
			})
			Expect(err).NotTo(HaveOccurred())

			o := await(f)
			Expect(o.Value).To(Equal(3))

			notes := rec.ForTask(f.ID())
			Expect(notes).To(HaveLen(1))
			Expect(notes[0].Outcome.Value).To(Equal(3))
		})

		It("should pass raw bytes through without a decoder", func() {
			f, err := s.LoadArtifact(ctx, scheduler.Load{
				Fetch: func(ctx context.Context) ([]byte, error) { return []byte("raw"), nil },
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(await(f).Value).To(Equal([]byte("raw")))
		})

		It("should fail with a readable message when the fetch fails", func() {
			f, err := s.LoadArtifact(ctx, scheduler.Load{
				Label: "Load image",
				Fetch: func(ctx context.Context) ([]byte, error) {
					return nil, errors.New("connection reset")
				},
			})
			Expect(err).NotTo(HaveOccurred())

			o := await(f)
			Expect(o.Status).To(Equal(task.StatusFailed))
			Expect(o.Message()).To(Equal("Load image failed: fetch artifact: connection reset"))
		})

		It("should fail when decoding fails", func() {
			f, _ := s.LoadArtifact(ctx, scheduler.Load{
				Fetch:  func(ctx context.Context) ([]byte, error) { return []byte("?"), nil },
				Decode: func([]byte) (any, error) { return nil, errors.New("bad header") },
			})
			Expect(await(f).Err).To(MatchError(ContainSubstring("decode artifact: bad header")))
		})

		It("should require a fetch function", func() {
			_, err := s.LoadArtifact(ctx, scheduler.Load{})
			Expect(tperrors.IsValidationError(err)).To(BeTrue())
		})
	})

	Describe("Every", func() {
		It("should submit repeatedly until removed", func() {
			var built atomic.Int32
			id, err := s.Every("* * * * * *", func() task.Task {
				built.Add(1)
				return task.Func("tick", func(ctx context.Context) (any, error) { return "tick", nil })
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Entries()).To(HaveLen(1))
			Expect(s.Entries()[0].Spec).To(Equal("* * * * * *"))

			s.Start()
			Eventually(built.Load, 3*time.Second, 50*time.Millisecond).Should(BeNumerically(">=", 2))

			Expect(s.Remove(id)).To(BeTrue())
			Expect(s.Remove(id)).To(BeFalse())
			Expect(s.Entries()).To(BeEmpty())

			// let a firing that raced the removal finish
			time.Sleep(100 * time.Millisecond)
			seen := built.Load()
			Consistently(built.Load, 1500*time.Millisecond, 100*time.Millisecond).Should(Equal(seen))
		})

		It("should reject invalid expressions", func() {
			_, err := s.Every("not a schedule", func() task.Task { return task.Task{} })
			Expect(tperrors.IsValidationError(err)).To(BeTrue())

			_, err = s.Every("", nil)
			Expect(tperrors.IsValidationError(err)).To(BeTrue())
		})

		It("should count triggers", func() {
			reg := metrics.NewRegistry(prometheus.NewRegistry())
			metered := scheduler.New(pool, scheduler.WithName("metered"), scheduler.WithMetrics(reg))

			_, err := metered.Every("@every 1s", func() task.Task {
				return task.Func("tick", func(ctx context.Context) (any, error) { return nil, nil })
			})
			Expect(err).NotTo(HaveOccurred())
			metered.Start()
			defer metered.Stop()

			Eventually(func() float64 {
				return promtest.ToFloat64(reg.SchedulerTriggers.WithLabelValues("metered", "submitted"))
			}, 3*time.Second, 50*time.Millisecond).Should(BeNumerically(">=", 1))
		})
	})

	Describe("Close", func() {
		It("should shut down an owned pool", func() {
			own, err := scheduler.NewWithConfig(scheduler.Config{WorkerCount: 1})
			Expect(err).NotTo(HaveOccurred())

			own.Start()
			own.Close(true)

			Eventually(own.Pool().Done()).Should(BeClosed())
			_, err = own.Compute(ctx, "late", 0)
			Expect(errors.Is(err, tperrors.ErrPoolClosed)).To(BeTrue())
		})

		It("should leave a borrowed pool running", func() {
			s.Close(true)

			f, err := pool.Submit(task.Func("still", func(ctx context.Context) (any, error) { return nil, nil }))
			Expect(err).NotTo(HaveOccurred())
			Expect(await(f).Status).To(Equal(task.StatusSucceeded))
		})

		It("should reject an invalid pool size", func() {
			_, err := scheduler.NewWithConfig(scheduler.Config{WorkerCount: -1})
			Expect(tperrors.IsValidationError(err)).To(BeTrue())
		})
	})
})
