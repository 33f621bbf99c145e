package testutil

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/taskpool/pkg/task"
)

// Recorder is a result sink that keeps every notification it receives.
// It also checks the single-consumer discipline: overlapping calls are
// counted in Overlaps.
type Recorder struct {
	mu       sync.Mutex
	notes    []task.Notification
	active   int32
	overlaps int32

	// Delay is slept inside every call, to simulate a slow consumer.
	Delay time.Duration
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Notify records n.
func (r *Recorder) Notify(n task.Notification) {
	if atomic.AddInt32(&r.active, 1) > 1 {
		atomic.AddInt32(&r.overlaps, 1)
	}
	defer atomic.AddInt32(&r.active, -1)

	if r.Delay > 0 {
		time.Sleep(r.Delay)
	}

	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

// OnProgress records a progress notification.
func (r *Recorder) OnProgress(id task.ID, message string) {
	r.Notify(task.Notification{Kind: task.KindProgress, TaskID: id, Message: message})
}

// OnCompleted records a completion notification.
func (r *Recorder) OnCompleted(id task.ID, outcome task.Outcome) {
	r.Notify(task.Notification{Kind: task.KindCompleted, TaskID: id, Outcome: outcome})
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []task.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]task.Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// ForTask returns the notifications of one task in delivery order.
func (r *Recorder) ForTask(id task.ID) []task.Notification {
	var out []task.Notification
	for _, n := range r.Notifications() {
		if n.TaskID == id {
			out = append(out, n)
		}
	}
	return out
}

// Outcomes returns the completion outcomes in delivery order.
func (r *Recorder) Outcomes() []task.Outcome {
	var out []task.Outcome
	for _, n := range r.Notifications() {
		if n.Kind == task.KindCompleted {
			out = append(out, n.Outcome)
		}
	}
	return out
}

// Overlaps reports how many calls started while another was running.
func (r *Recorder) Overlaps() int {
	return int(atomic.LoadInt32(&r.overlaps))
}

// WaitOutcomes waits until at least n completions were recorded.
func (r *Recorder) WaitOutcomes(t *testing.T, n int, timeout time.Duration) []task.Outcome {
	t.Helper()
	Eventually(t, func() bool { return len(r.Outcomes()) >= n }, timeout, 5*time.Millisecond)
	return r.Outcomes()
}

// Gauge tracks how many callers are inside a section at once and the
// highest value observed.
type Gauge struct {
	current int32
	peak    int32
}

// Enter marks the start of a section.
func (g *Gauge) Enter() {
	n := atomic.AddInt32(&g.current, 1)
	for {
		peak := atomic.LoadInt32(&g.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&g.peak, peak, n) {
			return
		}
	}
}

// Leave marks the end of a section.
func (g *Gauge) Leave() {
	atomic.AddInt32(&g.current, -1)
}

// Current returns the number of callers inside the section.
func (g *Gauge) Current() int {
	return int(atomic.LoadInt32(&g.current))
}

// Peak returns the highest concurrent count observed.
func (g *Gauge) Peak() int {
	return int(atomic.LoadInt32(&g.peak))
}

// CallbackTracker records invocations of a callback.
type CallbackTracker struct {
	mu    sync.Mutex
	count int
	value interface{}
}

// NewCallbackTracker creates a CallbackTracker.
func NewCallbackTracker() *CallbackTracker {
	return &CallbackTracker{}
}

// Mark records a call, optionally with the latest value.
func (c *CallbackTracker) Mark(value ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if len(value) > 0 {
		c.value = value[0]
	}
}

// CallCount returns the number of Mark calls.
func (c *CallbackTracker) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Value returns the last recorded value.
func (c *CallbackTracker) Value() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// AssertCallCount fails the test unless Mark was called exactly want times.
func (c *CallbackTracker) AssertCallCount(t *testing.T, want int) {
	t.Helper()
	if got := c.CallCount(); got != want {
		t.Fatalf("call count = %d, want %d", got, want)
	}
}
