// Package journal appends task notifications to a writer as JSON lines.
//
// Records are buffered in memory and written by a background goroutine,
// so a slow file never stalls the pool's delivery goroutine for longer
// than a channel send:
//
//	f, _ := os.OpenFile("tasks.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
//	j, _ := journal.New(journal.Config{Writer: f})
//	defer j.Close()
//	pool := workerpool.New(5, j)
//
// Each line is one sink.Record. Lines are written in delivery order.
package journal

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/pkg/common/logging"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// ErrClosed is returned when the journal has been closed.
var ErrClosed = errors.New("journal is closed")

// Config holds configuration options for a Journal.
type Config struct {
	// Writer receives the encoded lines. Required.
	Writer io.Writer

	// BufferSize is the number of buffered bytes that forces a write.
	// Default: 64KB
	BufferSize int

	// FlushInterval is how often buffered lines are written regardless of
	// size. Zero writes only when the buffer fills, on Flush and on Close.
	// DefaultConfig uses 1 second.
	FlushInterval time.Duration

	// MaxRetries is the number of times a failed write is retried.
	// DefaultConfig uses 3.
	MaxRetries int

	// RetryDelay is the delay between retries.
	// Default: 100ms
	RetryDelay time.Duration

	// QueueSize bounds the records waiting for the writer goroutine.
	// Default: 256
	QueueSize int

	Logger *zap.Logger
}

// DefaultConfig returns the default configuration without a writer.
func DefaultConfig() Config {
	return Config{
		BufferSize:    64 * 1024,
		FlushInterval: time.Second,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
		QueueSize:     256,
	}
}

// Stats holds journal counters.
type Stats struct {
	Records      int64
	BytesWritten int64
	Flushes      int64
	Errors       int64
	Dropped      int64
}

// Journal is a sink that appends JSON lines to a writer.
type Journal struct {
	config Config
	logger *zap.SugaredLogger

	lines   chan []byte
	flushCh chan chan error

	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
	done      chan struct{}
	closeErr  error

	buffer []byte

	records      atomic.Int64
	bytesWritten atomic.Int64
	flushes      atomic.Int64
	errs         atomic.Int64
	dropped      atomic.Int64
}

var _ sink.Notifier = (*Journal)(nil)

// New creates a journal and starts its writer goroutine.
func New(cfg Config) (*Journal, error) {
	if err := validation.ValidateNotNil("journal", "Writer", cfg.Writer == nil); err != nil {
		return nil, err
	}
	if err := validation.ValidateDuration("journal", "FlushInterval", cfg.FlushInterval); err != nil {
		return nil, err
	}

	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if err := validation.ValidateNonNegative("journal", "MaxRetries", cfg.MaxRetries); err != nil {
		return nil, err
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	j := &Journal{
		config:  cfg,
		logger:  logging.Or(cfg.Logger, "journal").Sugar(),
		lines:   make(chan []byte, cfg.QueueSize),
		flushCh: make(chan chan error),
		done:    make(chan struct{}),
		buffer:  make([]byte, 0, cfg.BufferSize),
	}
	go j.run()
	return j, nil
}

// Notify implements sink.Notifier.
func (j *Journal) Notify(n task.Notification) {
	line, err := sink.Encode(n)
	if err != nil {
		j.errs.Add(1)
		j.logger.Warnw("encode notification", "task_id", n.TaskID, "error", err)
		return
	}
	line = append(line, '\n')

	j.closeMu.RLock()
	defer j.closeMu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	j.lines <- line
}

// OnProgress implements sink.Sink.
func (j *Journal) OnProgress(id task.ID, message string) {
	j.Notify(sink.FromCallback(task.KindProgress, id, message, task.Outcome{}))
}

// OnCompleted implements sink.Sink.
func (j *Journal) OnCompleted(id task.ID, outcome task.Outcome) {
	j.Notify(sink.FromCallback(task.KindCompleted, id, "", outcome))
}

// Flush writes every line queued before the call.
func (j *Journal) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case j.flushCh <- reply:
	case <-j.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes the remaining lines and stops the writer goroutine.
// Notifications arriving afterwards are counted as dropped. The
// underlying writer is not closed.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		j.closeMu.Lock()
		j.closed = true
		close(j.lines)
		j.closeMu.Unlock()
		<-j.done
	})
	return j.closeErr
}

// Stats returns the journal counters.
func (j *Journal) Stats() Stats {
	return Stats{
		Records:      j.records.Load(),
		BytesWritten: j.bytesWritten.Load(),
		Flushes:      j.flushes.Load(),
		Errors:       j.errs.Load(),
		Dropped:      j.dropped.Load(),
	}
}

// run owns the buffer; every write to the underlying writer happens here.
func (j *Journal) run() {
	defer close(j.done)

	var tick <-chan time.Time
	if j.config.FlushInterval > 0 {
		ticker := time.NewTicker(j.config.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case line, ok := <-j.lines:
			if !ok {
				j.closeErr = j.flush()
				return
			}
			j.append(line)

		case reply := <-j.flushCh:
			// Lines queued before the flush request are written with it.
			for drained := false; !drained; {
				select {
				case line, ok := <-j.lines:
					if !ok {
						drained = true
						break
					}
					j.append(line)
				default:
					drained = true
				}
			}
			reply <- j.flush()

		case <-tick:
			_ = j.flush()
		}
	}
}

func (j *Journal) append(line []byte) {
	j.buffer = append(j.buffer, line...)
	j.records.Add(1)
	if len(j.buffer) >= j.config.BufferSize {
		_ = j.flush()
	}
}

func (j *Journal) flush() error {
	if len(j.buffer) == 0 {
		return nil
	}

	n, err := j.writeWithRetries(j.buffer)
	j.bytesWritten.Add(int64(n))
	j.flushes.Add(1)
	j.buffer = j.buffer[:0]

	if err != nil {
		j.errs.Add(1)
		j.logger.Errorw("journal write failed", "bytes", n, "error", err)
	}
	return err
}

func (j *Journal) writeWithRetries(data []byte) (int, error) {
	var written int
	var lastErr error

	for attempt := 0; attempt <= j.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(j.config.RetryDelay)
		}

		n, err := j.config.Writer.Write(data[written:])
		written += n
		if err != nil {
			lastErr = err
			continue
		}
		if written >= len(data) {
			return written, nil
		}
	}
	if lastErr == nil {
		lastErr = io.ErrShortWrite
	}
	return written, lastErr
}
