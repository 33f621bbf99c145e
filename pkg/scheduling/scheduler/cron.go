package scheduler

import (
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// EntryID identifies a recurring submission.
type EntryID = cron.EntryID

// Entry describes a recurring submission.
type Entry struct {
	ID   EntryID
	Spec string
	Next time.Time
	Prev time.Time
}

// Every submits a fresh task built by build each time spec fires.
//
// spec is a cron expression with a leading seconds field, or a descriptor:
//
//	"*/5 * * * * *"  - every 5 seconds
//	"0 30 9 * * 1-5" - 9:30 AM on weekdays
//	"@every 1m"      - every minute
//	"@hourly"        - every hour
//
// Submissions are not throttled: if the pool is busy the new task simply
// queues behind the previous one. Entries fire only while the scheduler
// is started.
func (s *Scheduler) Every(spec string, build func() task.Task) (EntryID, error) {
	if spec == "" {
		return 0, tperrors.NewValidationError("scheduler", "spec", spec, "cannot be empty").
			WithHint("use a cron expression such as */5 * * * * *")
	}
	if build == nil {
		return 0, tperrors.NewValidationError("scheduler", "build", nil, "cannot be nil")
	}

	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return 0, tperrors.NewValidationError("scheduler", "spec", spec, err.Error())
	}

	id := s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(spec, build) }))

	s.mu.Lock()
	s.specs[id] = spec
	s.mu.Unlock()

	s.logger.Debugw("recurring submission added", "entry", id, "spec", spec)
	return id, nil
}

func (s *Scheduler) fire(spec string, build func() task.Task) {
	t := build()
	f, err := s.pool.Submit(t)
	if err != nil {
		s.trigger("rejected")
		s.logger.Warnw("recurring submission rejected", "spec", spec, "label", t.Label, "error", err)
		return
	}
	s.trigger("submitted")
	s.logger.Debugw("recurring submission", "spec", spec, "task_id", f.ID(), "label", t.Label)
}

func (s *Scheduler) trigger(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SchedulerTriggers.WithLabelValues(s.name, result).Inc()
}

// Remove stops a recurring submission. Tasks it already submitted are
// not affected.
func (s *Scheduler) Remove(id EntryID) bool {
	s.mu.Lock()
	_, ok := s.specs[id]
	delete(s.specs, id)
	s.mu.Unlock()

	if ok {
		s.cron.Remove(id)
	}
	return ok
}

// Entries returns the recurring submissions ordered by next run.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	specs := make(map[EntryID]string, len(s.specs))
	for id, spec := range s.specs {
		specs[id] = spec
	}
	s.mu.Unlock()

	entries := make([]Entry, 0, len(specs))
	for _, e := range s.cron.Entries() {
		spec, ok := specs[e.ID]
		if !ok {
			continue
		}
		entries = append(entries, Entry{ID: e.ID, Spec: spec, Next: e.Next, Prev: e.Prev})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Next.Before(entries[j].Next)
	})
	return entries
}

// Start begins firing recurring submissions. Starting twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop halts recurring submissions and waits for a firing in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}
