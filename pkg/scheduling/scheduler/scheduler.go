package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/pkg/common/logging"
	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskpool/pkg/sink"
)

// DefaultWorkerCount is the size of a pool created by the scheduler itself.
const DefaultWorkerCount = 5

// Config holds scheduler configuration.
type Config struct {
	// Name labels the scheduler in logs and metrics.
	Name string

	// Pool runs the submitted tasks. When nil the scheduler creates and
	// owns a pool of WorkerCount workers delivering to Sink.
	Pool *workerpool.Pool

	// WorkerCount sizes an owned pool (default: DefaultWorkerCount).
	WorkerCount int

	// Sink receives notifications of an owned pool.
	Sink sink.Sink

	// Location is used for cron scheduling (default: time.Local).
	Location *time.Location

	Logger  *zap.Logger
	Metrics *metrics.Registry
}

// Option customizes a Scheduler built by New.
type Option func(*Config)

// WithName sets the scheduler name.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithLocation sets the time zone for cron expressions.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) { c.Location = loc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics enables recurring-trigger metrics.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Config) { c.Metrics = reg }
}

// Scheduler composes the interaction patterns over a worker pool: fan-out,
// progressive long-running work, single artifact loads, and recurring
// submissions driven by cron expressions.
type Scheduler struct {
	name    string
	pool    *workerpool.Pool
	ownPool bool
	logger  *zap.SugaredLogger
	metrics *metrics.Registry

	cron   *cron.Cron
	parser cron.Parser

	mu      sync.Mutex
	specs   map[EntryID]string
	running bool
}

// New creates a scheduler over an existing pool. The pool stays owned by
// the caller.
func New(pool *workerpool.Pool, opts ...Option) *Scheduler {
	cfg := Config{Pool: pool}
	for _, opt := range opts {
		opt(&cfg)
	}
	s, err := NewWithConfig(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) (*Scheduler, error) {
	if cfg.Name == "" {
		cfg.Name = "default"
	}

	pool := cfg.Pool
	ownPool := false
	if pool == nil {
		workers := cfg.WorkerCount
		if workers == 0 {
			workers = DefaultWorkerCount
		}
		var err error
		pool, err = workerpool.NewWithConfig(workerpool.Config{
			Name:        cfg.Name,
			WorkerCount: workers,
			Sink:        cfg.Sink,
			Logger:      cfg.Logger,
			Metrics:     cfg.Metrics,
		})
		if err != nil {
			return nil, err
		}
		ownPool = true
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	logger := logging.Or(cfg.Logger, "scheduler").Sugar().With("scheduler", cfg.Name)
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	return &Scheduler{
		name:    cfg.Name,
		pool:    pool,
		ownPool: ownPool,
		logger:  logger,
		metrics: cfg.Metrics,
		parser:  parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(location),
			cron.WithLogger(cronLogger{logger}),
		),
		specs: make(map[EntryID]string),
	}, nil
}

// Pool returns the pool the scheduler submits to.
func (s *Scheduler) Pool() *workerpool.Pool {
	return s.pool
}

// Close stops recurring submissions and, when the scheduler created its
// pool, shuts the pool down.
func (s *Scheduler) Close(drain bool) {
	s.Stop()
	if s.ownPool {
		s.pool.Shutdown(drain)
	}
}

// cronLogger routes cron's internal logging to zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
