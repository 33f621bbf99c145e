// Package eventsink publishes task notifications through a Watermill
// message.Publisher, so any Watermill transport (Go channels, Kafka,
// AMQP, SQL) can carry them.
//
// Payloads are sink.Record JSON documents; the metadata carries task_id,
// kind and, for completions, status.
package eventsink

import (
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/pkg/common/logging"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// DefaultTopic receives notifications when Config.Topic is empty.
const DefaultTopic = "taskpool.notifications"

// Metadata keys set on every message.
const (
	MetadataTaskID = "task_id"
	MetadataKind   = "kind"
	MetadataStatus = "status"
)

// Config configures an event sink.
type Config struct {
	// Publisher is required.
	Publisher message.Publisher

	// Topic defaults to DefaultTopic.
	Topic string

	Logger *zap.Logger
}

// Sink publishes notifications as Watermill messages.
type Sink struct {
	publisher message.Publisher
	topic     string
	logger    *zap.SugaredLogger
	failed    atomic.Int64
}

var (
	_ sink.Sink     = (*Sink)(nil)
	_ sink.Notifier = (*Sink)(nil)
)

// New creates an event sink.
func New(cfg Config) (*Sink, error) {
	if err := validation.ValidateNotNil("eventsink", "Publisher", cfg.Publisher == nil); err != nil {
		return nil, err
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	return &Sink{
		publisher: cfg.Publisher,
		topic:     topic,
		logger:    logging.Or(cfg.Logger, "sink").Sugar().With("sink", "watermill", "topic", topic),
	}, nil
}

// Topic returns the topic messages are published to.
func (s *Sink) Topic() string {
	return s.topic
}

// Notify implements sink.Notifier.
func (s *Sink) Notify(n task.Notification) {
	payload, err := sink.Encode(n)
	if err != nil {
		s.failed.Add(1)
		s.logger.Errorw("failed to encode notification", "task_id", n.TaskID, "error", err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataTaskID, string(n.TaskID))
	msg.Metadata.Set(MetadataKind, n.Kind.String())
	if n.Kind == task.KindCompleted {
		msg.Metadata.Set(MetadataStatus, n.Outcome.Status.String())
	}

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		s.failed.Add(1)
		s.logger.Errorw("failed to publish notification", "task_id", n.TaskID, "error", err)
	}
}

// OnProgress implements sink.Sink.
func (s *Sink) OnProgress(id task.ID, message string) {
	s.Notify(sink.FromCallback(task.KindProgress, id, message, task.Outcome{}))
}

// OnCompleted implements sink.Sink.
func (s *Sink) OnCompleted(id task.ID, outcome task.Outcome) {
	s.Notify(sink.FromCallback(task.KindCompleted, id, "", outcome))
}

// Failed returns the number of notifications that could not be published.
func (s *Sink) Failed() int64 {
	return s.failed.Load()
}
