package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/logging"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/ratelimit/bucket"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

const (
	// DefaultDeliveryBuffer is the number of notifications that may wait for
	// the sink before workers block.
	DefaultDeliveryBuffer = 64

	// DefaultName labels logs and metrics when Config.Name is empty.
	DefaultName = "default"
)

// Config holds configuration options for creating a worker pool.
type Config struct {
	// Name labels the pool in logs and metrics.
	Name string

	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// DeliveryBuffer bounds the notifications queued for the sink.
	// Zero selects DefaultDeliveryBuffer.
	DeliveryBuffer int

	// TaskTimeout is the default timeout for individual task execution.
	// Zero means no timeout. Task.Timeout overrides it.
	TaskTimeout time.Duration

	// ProgressRate caps the progress notifications each task may post per
	// second. Reports over the limit are dropped; completions never are.
	// Zero disables throttling.
	ProgressRate bucket.Limit

	// ProgressBurst is the number of reports a task may post at once before
	// ProgressRate applies (default: 1).
	ProgressBurst int

	// Sink receives every progress and completion notification. Nil
	// discards them; Futures still resolve.
	Sink sink.Sink

	// Logger defaults to the global zap logger.
	Logger *zap.Logger

	// Metrics enables Prometheus instrumentation when non-nil.
	Metrics *metrics.Registry

	// PanicHandler is called when a task panics. The panic is recovered
	// and reported as a failed outcome either way.
	PanicHandler func(t task.Task, recovered interface{})

	// OnWorkerStart is called when a worker starts.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	OnWorkerStop func(workerID int)

	// OnTaskStart is called before a task begins execution.
	OnTaskStart func(workerID int, t task.Task)

	// OnTaskComplete is called after a task finishes on a worker, before
	// its completion reaches the sink.
	OnTaskComplete func(workerID int, outcome task.Outcome)
}

func (c Config) validate() error {
	if err := validation.ValidatePositive("workerpool", "WorkerCount", c.WorkerCount); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("workerpool", "DeliveryBuffer", c.DeliveryBuffer); err != nil {
		return err
	}
	if c.ProgressRate < 0 {
		return tperrors.NewValidationError("workerpool", "ProgressRate", c.ProgressRate, "cannot be negative").
			WithHint("use 0 to disable throttling")
	}
	if err := validation.ValidateNonNegative("workerpool", "ProgressBurst", c.ProgressBurst); err != nil {
		return err
	}
	return validation.ValidateDuration("workerpool", "TaskTimeout", c.TaskTimeout)
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Name      string
	Workers   int
	Active    int
	Queued    int
	InFlight  int
	Submitted int64
	Completed int64
	Shutdown  bool
}

// Pool runs submitted tasks on a fixed number of workers and reports their
// notifications to a single sink from one delivery goroutine.
//
// Pending tasks wait in an unbounded FIFO queue, so Submit never blocks.
type Pool struct {
	config  Config
	sink    sink.Sink
	logger  *zap.SugaredLogger
	metrics *instruments

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []*entry
	inFlight map[task.ID]int
	known    map[task.ID]struct{}
	shutdown bool
	active   int

	totalSubmitted atomic.Int64
	totalCompleted atomic.Int64

	deliveries   chan delivery
	deliveryDone chan struct{}
	workerWg     sync.WaitGroup
	dropWg       sync.WaitGroup
	stopOnce     sync.Once
	done         chan struct{}
}

// entry is a task between Submit and its completion.
type entry struct {
	task      task.Task
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool
	future    *Future
	enqueued  time.Time
}

// New creates a pool with workerCount workers delivering to s.
// It panics if workerCount is not positive.
func New(workerCount int, s sink.Sink) *Pool {
	p, err := NewWithConfig(Config{
		WorkerCount: workerCount,
		Sink:        s,
	})
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfig creates a pool and starts its workers and delivery loop.
func NewWithConfig(config Config) (*Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = DefaultName
	}
	if config.DeliveryBuffer == 0 {
		config.DeliveryBuffer = DefaultDeliveryBuffer
	}
	if config.ProgressBurst == 0 {
		config.ProgressBurst = 1
	}

	s := config.Sink
	if s == nil {
		s = sink.Discard
	}

	p := &Pool{
		config:       config,
		sink:         s,
		logger:       logging.Or(config.Logger, "workerpool").Sugar().With("pool", config.Name),
		metrics:      newInstruments(config.Metrics, config.Name),
		inFlight:     make(map[task.ID]int),
		known:        make(map[task.ID]struct{}),
		deliveries:   make(chan delivery, config.DeliveryBuffer),
		deliveryDone: make(chan struct{}),
		done:         make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	p.metrics.poolSize(config.WorkerCount)

	go p.deliver()

	for i := 0; i < config.WorkerCount; i++ {
		w := &worker{id: i, pool: p}
		p.workerWg.Add(1)
		go w.run()
	}

	p.logger.Debugw("worker pool started", "workers", config.WorkerCount)
	return p, nil
}
