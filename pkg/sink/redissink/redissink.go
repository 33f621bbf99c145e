// Package redissink publishes task notifications to Redis pub/sub.
//
// Every notification is encoded as a sink.Record and published on
// "<prefix>:progress" or "<prefix>:completed":
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s, err := redissink.New(redissink.Config{Redis: rdb, Prefix: "ui"})
//	pool := workerpool.New(5, s)
//
// Publishing happens on the pool's delivery goroutine, so each call is
// bounded by Config.Timeout. Failures are logged and counted, never
// propagated to the pool.
package redissink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/pkg/common/logging"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// Publisher is the subset of redis.UniversalClient used by the sink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Config configures a Redis sink.
type Config struct {
	// Redis client used for PUBLISH. Required.
	Redis Publisher

	// Prefix of the channel names (default: "taskpool").
	Prefix string

	// Timeout bounds each publish (default: 1s).
	Timeout time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns the default configuration without a client.
func DefaultConfig() Config {
	return Config{
		Prefix:  "taskpool",
		Timeout: time.Second,
	}
}

// Sink publishes notifications to Redis.
type Sink struct {
	config    Config
	logger    *zap.SugaredLogger
	published atomic.Int64
	failed    atomic.Int64
}

var (
	_ sink.Sink     = (*Sink)(nil)
	_ sink.Notifier = (*Sink)(nil)
)

// New creates a Redis sink.
func New(cfg Config) (*Sink, error) {
	if err := validation.ValidateNotNil("redissink", "Redis", cfg.Redis == nil); err != nil {
		return nil, err
	}
	if err := validation.ValidateDuration("redissink", "Timeout", cfg.Timeout); err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = defaults.Prefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	return &Sink{
		config: cfg,
		logger: logging.Or(cfg.Logger, "sink").Sugar().With("sink", "redis"),
	}, nil
}

// Channel returns the channel a notification of kind k is published on.
func (s *Sink) Channel(k task.Kind) string {
	return s.config.Prefix + ":" + k.String()
}

// Notify implements sink.Notifier.
func (s *Sink) Notify(n task.Notification) {
	payload, err := sink.Encode(n)
	if err != nil {
		s.failed.Add(1)
		s.logger.Errorw("failed to encode notification", "task_id", n.TaskID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	channel := s.Channel(n.Kind)
	if err := s.config.Redis.Publish(ctx, channel, payload).Err(); err != nil {
		s.failed.Add(1)
		s.logger.Errorw("failed to publish notification",
			"channel", channel,
			"task_id", n.TaskID,
			"error", err)
		return
	}
	s.published.Add(1)
}

// OnProgress implements sink.Sink.
func (s *Sink) OnProgress(id task.ID, message string) {
	s.Notify(sink.FromCallback(task.KindProgress, id, message, task.Outcome{}))
}

// OnCompleted implements sink.Sink.
func (s *Sink) OnCompleted(id task.ID, outcome task.Outcome) {
	s.Notify(sink.FromCallback(task.KindCompleted, id, "", outcome))
}

// Published returns the number of successful publishes.
func (s *Sink) Published() int64 {
	return s.published.Load()
}

// Failed returns the number of notifications that could not be published.
func (s *Sink) Failed() int64 {
	return s.failed.Load()
}
