package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	tpcontext "github.com/vnykmshr/taskpool/pkg/common/context"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// Submit adds a task to the pool for execution.
// Use SubmitWithContext to bind the task to a cancellation context.
func (p *Pool) Submit(t task.Task) (*Future, error) {
	return p.SubmitWithContext(context.Background(), t)
}

// SubmitWithContext adds a task to the pool. ctx is the task's cancellation
// token: cancelling it removes a pending task from the queue and is
// observed cooperatively by a running one.
//
// Submission never blocks. It fails with ErrPoolClosed after Shutdown, with
// a ValidationError when the task has no Work or reuses the ID of a task
// that has not completed yet, and with ctx.Err() when ctx is already done.
func (p *Pool) SubmitWithContext(ctx context.Context, t task.Task) (*Future, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if t.Work == nil {
		p.metrics.rejected()
		return nil, tperrors.NewValidationError("workerpool", "Work", nil, "cannot be nil").
			WithHint("build tasks with task.New or task.Func")
	}
	if err := ctx.Err(); err != nil {
		p.metrics.rejected()
		return nil, fmt.Errorf("cannot submit task: %w", err)
	}
	if t.ID == "" {
		t.ID = task.NewID()
	}

	taskCtx, cancel := context.WithCancel(ctx)
	e := &entry{
		task:     t,
		ctx:      taskCtx,
		cancel:   cancel,
		future:   newFuture(t.ID, t.Label, cancel),
		enqueued: time.Now(),
	}
	e.stopWatch = context.AfterFunc(taskCtx, func() { p.dropPending(e, task.ReasonCancelled) })

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		cancel()
		p.metrics.rejected()
		return nil, tperrors.ErrPoolClosed
	}
	if _, dup := p.known[t.ID]; dup {
		p.mu.Unlock()
		cancel()
		p.metrics.rejected()
		return nil, tperrors.NewValidationError("workerpool", "ID", t.ID, "already submitted").
			WithHint("wait for the previous task with this ID to complete")
	}
	p.known[t.ID] = struct{}{}
	p.pending = append(p.pending, e)
	p.totalSubmitted.Add(1)
	p.metrics.queued(len(p.pending))
	p.cond.Signal()
	p.mu.Unlock()

	p.metrics.submitted()
	return e.future, nil
}

// dropPending completes e as cancelled if it is still waiting for a worker.
func (p *Pool) dropPending(e *entry, reason task.Reason) {
	p.mu.Lock()
	idx := -1
	for i, pe := range p.pending {
		if pe == e {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return
	}
	p.pending = append(p.pending[:idx], p.pending[idx+1:]...)
	p.metrics.queued(len(p.pending))
	p.dropWg.Add(1)
	p.mu.Unlock()

	defer p.dropWg.Done()
	p.complete(e, p.unstarted(e, reason))
}

// Shutdown stops accepting tasks and blocks until the pool has stopped.
//
// With drain set, every pending and in-flight task runs to completion.
// Otherwise pending tasks are completed as cancelled with ReasonShutdown
// and only in-flight tasks are awaited. In both cases all notifications
// reach the sink before Shutdown returns. Calling it again is safe; a
// non-draining call escalates a draining shutdown already in progress.
func (p *Pool) Shutdown(drain bool) {
	<-p.beginShutdown(drain)
}

// ShutdownContext is Shutdown bounded by ctx. When ctx ends first it returns
// an error wrapping ErrTimeout; the pool keeps stopping in the background.
func (p *Pool) ShutdownContext(ctx context.Context, drain bool) error {
	select {
	case <-p.beginShutdown(drain):
		return nil
	case <-ctx.Done():
		return tperrors.NewOperationError("workerpool", "Shutdown",
			fmt.Errorf("%w: %w", tperrors.ErrTimeout, ctx.Err())).
			WithContext(fmt.Sprintf("%d tasks still in flight", len(p.InFlight())))
	}
}

// Done returns a channel that is closed once the pool has fully stopped.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

func (p *Pool) beginShutdown(drain bool) <-chan struct{} {
	p.mu.Lock()
	first := !p.shutdown
	p.shutdown = true
	var dropped []*entry
	if !drain && len(p.pending) > 0 {
		dropped = p.pending
		p.pending = nil
		p.metrics.queued(0)
		p.dropWg.Add(1)
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	if first {
		p.logger.Infow("shutting down", "drain", drain)
	}

	if dropped != nil {
		go func() {
			defer p.dropWg.Done()
			for _, e := range dropped {
				e.stopWatch()
				p.complete(e, p.unstarted(e, task.ReasonShutdown))
			}
		}()
	}

	p.stopOnce.Do(func() { go p.stop() })
	return p.done
}

func (p *Pool) stop() {
	p.workerWg.Wait()
	p.dropWg.Wait()
	close(p.deliveries)
	<-p.deliveryDone
	p.metrics.active(0)
	p.logger.Infow("worker pool stopped",
		"submitted", p.totalSubmitted.Load(),
		"completed", p.totalCompleted.Load())
	close(p.done)
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return p.config.WorkerCount
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string {
	return p.config.Name
}

// QueueSize returns the number of tasks waiting for a worker.
func (p *Pool) QueueSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// ActiveWorkers returns the number of workers currently executing tasks.
func (p *Pool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// InFlight returns the IDs of running tasks mapped to their worker.
func (p *Pool) InFlight() map[task.ID]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[task.ID]int, len(p.inFlight))
	for id, w := range p.inFlight {
		out[id] = w
	}
	return out
}

// TotalSubmitted returns the number of tasks accepted by the pool.
func (p *Pool) TotalSubmitted() int64 {
	return p.totalSubmitted.Load()
}

// TotalCompleted returns the number of completions delivered to the sink.
func (p *Pool) TotalCompleted() int64 {
	return p.totalCompleted.Load()
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:      p.config.Name,
		Workers:   p.config.WorkerCount,
		Active:    p.active,
		Queued:    len(p.pending),
		InFlight:  len(p.inFlight),
		Submitted: p.totalSubmitted.Load(),
		Completed: p.totalCompleted.Load(),
		Shutdown:  p.shutdown,
	}
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *Pool
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	if p.config.OnWorkerStop != nil {
		defer p.config.OnWorkerStop(w.id)
	}

	for {
		e := p.next(w.id)
		if e == nil {
			return
		}
		w.execute(e)
	}
}

// next pops the head of the queue, waiting while it is empty. It returns
// nil once the pool is shut down and nothing is left to run.
func (p *Pool) next(workerID int) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.pending) == 0 && !p.shutdown {
		p.cond.Wait()
	}
	if len(p.pending) == 0 {
		return nil
	}

	e := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	p.inFlight[e.task.ID] = workerID
	p.active++

	p.metrics.queued(len(p.pending))
	p.metrics.active(p.active)
	p.metrics.queueWait(time.Since(e.enqueued))
	return e
}

// execute runs a single task and posts its completion.
func (w *worker) execute(e *entry) {
	p := w.pool
	e.stopWatch()

	if tpcontext.IsCanceled(e.ctx) {
		p.complete(e, p.unstarted(e, task.ReasonCancelled))
		return
	}

	if p.config.OnTaskStart != nil {
		p.config.OnTaskStart(w.id, e.task)
	}

	timeout := e.task.Timeout
	if timeout <= 0 {
		timeout = p.config.TaskTimeout
	}
	ctx, cancel := tpcontext.WithOptionalTimeout(e.ctx, timeout)
	defer cancel()

	rep := p.newReporter(e)
	start := time.Now()
	value, recovered, err := w.invoke(ctx, e.task, rep)
	seq := rep.seal()

	outcome := task.Outcome{
		TaskID:   e.task.ID,
		Label:    e.task.Label,
		Duration: time.Since(start),
		WorkerID: w.id,
	}

	switch {
	case recovered != nil:
		outcome.Status = task.StatusFailed
		outcome.Err = tperrors.NewTaskError(string(e.task.ID), e.task.Label, fmt.Errorf("panic: %v", recovered))
	case err == nil:
		outcome.Status = task.StatusSucceeded
		outcome.Value = value
	case ctx.Err() != nil || tperrors.IsCancellation(err):
		outcome.Status = task.StatusCancelled
		outcome.Err = err
		outcome.Reason = task.ReasonCancelled
		if tpcontext.IsTimedOut(ctx) || tperrors.IsRetryable(err) {
			outcome.Reason = task.ReasonTimeout
		}
	default:
		outcome.Status = task.StatusFailed
		outcome.Err = tperrors.NewTaskError(string(e.task.ID), e.task.Label, err)
	}

	if outcome.Status == task.StatusFailed {
		p.logger.Debugw("task failed", "task_id", e.task.ID, "label", e.task.Label, "error", outcome.Err)
	}

	if p.config.OnTaskComplete != nil {
		p.config.OnTaskComplete(w.id, outcome)
	}
	p.completeSeq(e, outcome, seq+1)
}

// invoke runs the task's work, recovering panics.
func (w *worker) invoke(ctx context.Context, t task.Task, progress task.Progress) (value any, recovered interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
			w.pool.logger.Errorw("task panicked",
				"task_id", t.ID,
				"label", t.Label,
				"worker", w.id,
				"panic", r,
				"stack", string(debug.Stack()))
			if w.pool.config.PanicHandler != nil {
				w.pool.config.PanicHandler(t, r)
			}
		}
	}()

	value, err = t.Work(ctx, progress)
	return value, nil, err
}

// unstarted builds the outcome of a task that never reached a worker.
func (p *Pool) unstarted(e *entry, reason task.Reason) task.Outcome {
	err := tperrors.ErrCancelled
	if cause := e.ctx.Err(); cause != nil && reason == task.ReasonCancelled {
		err = fmt.Errorf("%w: %w", tperrors.ErrCancelled, cause)
	}
	return task.Outcome{
		TaskID:   e.task.ID,
		Label:    e.task.Label,
		Status:   task.StatusCancelled,
		Err:      err,
		Reason:   reason,
		WorkerID: -1,
	}
}

func (p *Pool) complete(e *entry, outcome task.Outcome) {
	p.completeSeq(e, outcome, 1)
}

// completeSeq posts the completion and releases the task's bookkeeping.
func (p *Pool) completeSeq(e *entry, outcome task.Outcome, seq int) {
	p.metrics.completed(outcome)

	p.post(delivery{
		n: task.Notification{
			Kind:    task.KindCompleted,
			TaskID:  e.task.ID,
			Label:   e.task.Label,
			Seq:     seq,
			Message: outcome.Message(),
			Outcome: outcome,
			At:      time.Now(),
		},
		future: e.future,
	})

	e.cancel()

	p.mu.Lock()
	if _, running := p.inFlight[e.task.ID]; running {
		delete(p.inFlight, e.task.ID)
		p.active--
		p.metrics.active(p.active)
	}
	delete(p.known, e.task.ID)
	p.mu.Unlock()
}
