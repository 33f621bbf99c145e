// Package metrics provides Prometheus instrumentation for taskpool components.
//
// # Quick Start
//
// Pass a Registry to the worker pool configuration:
//
//	reg := metrics.NewRegistry(prometheus.NewRegistry())
//	pool, err := workerpool.NewWithConfig(workerpool.Config{
//		Name:        "ui",
//		WorkerCount: 5,
//		Metrics:     reg,
//	})
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//
// A nil Registry disables instrumentation.
//
// # Available Metrics
//
// Worker pool (label pool_name):
//
//   - taskpool_workerpool_tasks_submitted_total
//   - taskpool_workerpool_tasks_rejected_total
//   - taskpool_workerpool_tasks_completed_total (label status)
//   - taskpool_workerpool_task_duration_seconds (label status)
//   - taskpool_workerpool_queue_wait_seconds
//   - taskpool_workerpool_progress_notifications_total
//   - taskpool_workerpool_sink_panics_total
//   - taskpool_workerpool_size
//   - taskpool_workerpool_active_workers
//   - taskpool_workerpool_queued_tasks
//
// Scheduler (labels scheduler_name, result):
//
//   - taskpool_scheduler_triggers_total
package metrics
