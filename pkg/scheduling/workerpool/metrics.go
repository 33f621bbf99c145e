package workerpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/task"
)

// NewWithMetrics creates a pool instrumented on its own Prometheus registry.
// The registry is returned so callers can expose or inspect it.
func NewWithMetrics(workerCount int, name string, s sink.Sink) (*Pool, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	p, err := NewWithConfig(Config{
		Name:        name,
		WorkerCount: workerCount,
		Sink:        s,
		Metrics:     metrics.NewRegistry(reg),
	})
	if err != nil {
		return nil, nil, err
	}
	return p, reg, nil
}

// instruments records pool metrics. A nil *instruments is a no-op.
type instruments struct {
	registry *metrics.Registry
	name     string
}

func newInstruments(reg *metrics.Registry, name string) *instruments {
	if reg == nil {
		return nil
	}
	return &instruments{registry: reg, name: name}
}

func (m *instruments) poolSize(n int) {
	if m == nil {
		return
	}
	m.registry.WorkerPoolSize.WithLabelValues(m.name).Set(float64(n))
}

func (m *instruments) submitted() {
	if m == nil {
		return
	}
	m.registry.TasksSubmitted.WithLabelValues(m.name).Inc()
}

func (m *instruments) rejected() {
	if m == nil {
		return
	}
	m.registry.TasksRejected.WithLabelValues(m.name).Inc()
}

func (m *instruments) queued(n int) {
	if m == nil {
		return
	}
	m.registry.WorkerPoolQueued.WithLabelValues(m.name).Set(float64(n))
}

func (m *instruments) active(n int) {
	if m == nil {
		return
	}
	m.registry.WorkerPoolActive.WithLabelValues(m.name).Set(float64(n))
}

func (m *instruments) queueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.registry.QueueWait.WithLabelValues(m.name).Observe(d.Seconds())
}

func (m *instruments) completed(o task.Outcome) {
	if m == nil {
		return
	}
	status := o.Status.String()
	m.registry.TasksCompleted.WithLabelValues(m.name, status).Inc()
	if o.WorkerID >= 0 {
		m.registry.TaskDuration.WithLabelValues(m.name, status).Observe(o.Duration.Seconds())
	}
}

func (m *instruments) progress() {
	if m == nil {
		return
	}
	m.registry.ProgressNotifications.WithLabelValues(m.name).Inc()
}

func (m *instruments) progressDropped() {
	if m == nil {
		return
	}
	m.registry.ProgressDropped.WithLabelValues(m.name).Inc()
}

func (m *instruments) sinkPanic() {
	if m == nil {
		return
	}
	m.registry.SinkPanics.WithLabelValues(m.name).Inc()
}
