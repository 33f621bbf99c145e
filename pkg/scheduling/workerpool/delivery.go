package workerpool

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/vnykmshr/taskpool/pkg/ratelimit/bucket"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// delivery is one notification queued for the sink. future is set for
// completions and resolved once the sink has returned.
type delivery struct {
	n      task.Notification
	future *Future
}

func (p *Pool) post(d delivery) {
	p.deliveries <- d
}

// deliver is the only goroutine that calls the sink.
func (p *Pool) deliver() {
	defer close(p.deliveryDone)

	for d := range p.deliveries {
		p.dispatch(d.n)
		if d.future != nil {
			p.totalCompleted.Add(1)
			d.future.resolve(d.n.Outcome)
		}
	}
}

func (p *Pool) dispatch(n task.Notification) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.sinkPanic()
			p.logger.Errorw("sink panicked",
				"task_id", n.TaskID,
				"kind", n.Kind.String(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	if n.Kind == task.KindProgress {
		p.metrics.progress()
	}
	sink.Deliver(p.sink, n)
}

// reporter is the Progress handed to a running task. It is sealed before
// the completion is posted, so reports made after the work returned are
// dropped and never overtake the completion.
type reporter struct {
	pool     *Pool
	entry    *entry
	throttle bucket.Limiter

	mu     sync.Mutex
	seq    int
	sealed bool
}

func (p *Pool) newReporter(e *entry) *reporter {
	r := &reporter{pool: p, entry: e}
	if p.config.ProgressRate > 0 {
		// Config.validate already checked rate and burst.
		r.throttle, _ = bucket.New(p.config.ProgressRate, p.config.ProgressBurst)
	}
	return r
}

// Report implements task.Progress.
func (r *reporter) Report(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return
	}
	if r.throttle != nil && !r.throttle.Allow() {
		r.pool.metrics.progressDropped()
		return
	}
	r.seq++
	r.pool.post(delivery{n: task.Notification{
		Kind:    task.KindProgress,
		TaskID:  r.entry.task.ID,
		Label:   r.entry.task.Label,
		Seq:     r.seq,
		Message: message,
		At:      time.Now(),
	}})
}

// seal stops further reports and returns the last sequence number used.
func (r *reporter) seal() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	return r.seq
}
