// Package integration runs the scheduler, pool and every bundled sink
// together.
package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/taskpool/internal/testutil"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/sink/eventsink"
	"github.com/vnykmshr/taskpool/pkg/sink/journal"
	"github.com/vnykmshr/taskpool/pkg/sink/redissink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

type redisStub struct {
	mu       sync.Mutex
	channels []string
}

func (r *redisStub) Publish(_ context.Context, channel string, _ interface{}) *redis.IntCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels = append(r.channels, channel)
	return redis.NewIntResult(1, nil)
}

func (r *redisStub) count(channel string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.channels {
		if c == channel {
			n++
		}
	}
	return n
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

// TestPatternsAcrossSinks runs every interaction pattern on one pool and
// checks that each sink observes the same notifications.
func TestPatternsAcrossSinks(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	defer pubsub.Close()
	messages, err := pubsub.Subscribe(ctx, eventsink.DefaultTopic)
	testutil.AssertNoError(t, err)

	events, err := eventsink.New(eventsink.Config{Publisher: pubsub})
	testutil.AssertNoError(t, err)

	stub := &redisStub{}
	rs, err := redissink.New(redissink.Config{Redis: stub, Prefix: "ui"})
	testutil.AssertNoError(t, err)

	out := &syncBuffer{}
	j, err := journal.New(journal.Config{Writer: out})
	testutil.AssertNoError(t, err)

	text := sink.NewText()
	rec := testutil.NewRecorder()
	reg := metrics.NewRegistry(prometheus.NewRegistry())

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		Name:        "integration",
		WorkerCount: 3,
		Sink:        sink.Multi{text, rec, j, events, rs},
		Metrics:     reg,
	})
	testutil.AssertNoError(t, err)
	s := scheduler.New(pool, scheduler.WithName("integration"), scheduler.WithMetrics(reg))

	jobs := scheduler.DemoTasks()
	for i := range jobs {
		jobs[i].Duration = 5 * time.Millisecond
	}
	futures, err := s.FanOut(ctx, jobs)
	testutil.AssertNoError(t, err)

	block, err := s.RunProgressive(ctx, scheduler.Progressive{Iterations: 3, Interval: time.Millisecond})
	testutil.AssertNoError(t, err)

	load, err := s.LoadArtifact(ctx, scheduler.Load{
		Label: "Load config",
		Fetch: func(context.Context) ([]byte, error) { return []byte("{"), nil },
		Decode: func(data []byte) (any, error) {
			var v map[string]any
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	})
	testutil.AssertNoError(t, err)

	outcomes, err := workerpool.WaitAll(ctx, append(futures, block, load)...)
	testutil.AssertNoError(t, err)
	pool.Shutdown(true)
	testutil.AssertNoError(t, j.Close())

	for i, o := range outcomes[:len(jobs)] {
		testutil.AssertEqual(t, o.Status, task.StatusSucceeded)
		testutil.AssertEqual(t, o.Value, any(jobs[i].Label+": "+jobs[i].Result))
	}
	testutil.AssertEqual(t, outcomes[len(jobs)].Status, task.StatusSucceeded)
	failed := outcomes[len(jobs)+1]
	testutil.AssertEqual(t, failed.Status, task.StatusFailed)
	if !strings.HasPrefix(failed.Message(), "Load config failed: decode artifact:") {
		t.Errorf("unexpected failure message %q", failed.Message())
	}

	// 7 completions and 3 progress notifications.
	const total = 10
	testutil.AssertEqual(t, len(rec.Notifications()), total)
	testutil.AssertEqual(t, rec.Overlaps(), 0)
	testutil.AssertEqual(t, len(out.lines()), total)
	testutil.AssertEqual(t, stub.count("ui:progress"), 3)
	testutil.AssertEqual(t, stub.count("ui:completed"), 7)
	testutil.AssertEqual(t, len(text.Lines()), 7)

	received := 0
	for received < total {
		select {
		case msg := <-messages:
			msg.Ack()
			received++
		case <-time.After(testutil.TestTimeout):
			t.Fatalf("received %d of %d events", received, total)
		}
	}

	testutil.AssertEqual(t, promtest.ToFloat64(reg.TasksCompleted.WithLabelValues("integration", "succeeded")), 6.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.TasksCompleted.WithLabelValues("integration", "failed")), 1.0)
	testutil.AssertEqual(t, promtest.ToFloat64(reg.ProgressNotifications.WithLabelValues("integration")), 3.0)
}

// TestShutdownDropsQueuedPatterns stops a busy pool without draining.
func TestShutdownDropsQueuedPatterns(t *testing.T) {
	rec := testutil.NewRecorder()
	pool := workerpool.New(1, rec)
	s := scheduler.New(pool)

	release := make(chan struct{})
	started := make(chan struct{})
	running, err := pool.Submit(task.Func("running", func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "kept", nil
	}))
	testutil.AssertNoError(t, err)
	<-started

	queued, err := s.FanOut(context.Background(), scheduler.DemoTasks())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pool.QueueSize(), len(queued))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	pool.Shutdown(false)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	o, err := running.Wait(ctx)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, o.Status, task.StatusSucceeded)

	for _, f := range queued {
		o, err := f.Wait(ctx)
		testutil.AssertNoError(t, err)
		testutil.AssertEqual(t, o.Status, task.StatusCancelled)
		testutil.AssertEqual(t, o.Reason, task.ReasonShutdown)
		testutil.AssertEqual(t, o.WorkerID, -1)
	}
	testutil.AssertEqual(t, len(rec.Outcomes()), 1+len(queued))

	_, err = s.Compute(context.Background(), "", time.Millisecond)
	if err == nil {
		t.Fatal("expected submission to a stopped pool to fail")
	}
}

// TestRecurringSubmissions drives an owned pool from a cron entry.
func TestRecurringSubmissions(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for cron ticks")
	}

	rec := testutil.NewRecorder()
	s, err := scheduler.NewWithConfig(scheduler.Config{Name: "ticker", WorkerCount: 1, Sink: rec})
	testutil.AssertNoError(t, err)

	_, err = s.Every("* * * * * *", func() task.Task {
		return task.Func("tick", func(context.Context) (any, error) { return "tick", nil })
	})
	testutil.AssertNoError(t, err)
	s.Start()

	rec.WaitOutcomes(t, 1, 3*time.Second)
	s.Close(true)

	seen := len(rec.Outcomes())
	time.Sleep(1200 * time.Millisecond)
	testutil.AssertEqual(t, len(rec.Outcomes()), seen)

	select {
	case <-s.Pool().Done():
	default:
		t.Fatal("Close should stop an owned pool")
	}
}
