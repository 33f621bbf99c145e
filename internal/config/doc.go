// Package config defines the configuration of the taskpool command.
//
// Values are resolved in increasing priority: struct defaults (creasty/defaults
// tags), a YAML file, TASKPOOL_* environment variables, then command-line
// flags bound with BindFlags.
//
// # Configuration Structure
//
//	Configuration
//	├── Pool       - worker pool sizing and timeouts
//	├── Redis      - optional Redis pub/sub sink
//	├── Events     - optional in-process Watermill event stream
//	├── Metrics    - Prometheus exposition
//	├── Journal    - optional JSON-lines notification journal
//	├── LogFormat  - "console" or "json"
//	└── LogLevel   - debug, info, warn or error
//
// # Pool Configuration
//
//	┌────────────────┬────────────┬──────────────────────────────────────┐
//	│ Field          │ Default    │ Description                          │
//	├────────────────┼────────────┼──────────────────────────────────────┤
//	│ Name           │ "taskpool" │ Label used in logs and metrics       │
//	│ Workers        │ 5          │ Number of workers                    │
//	│ DeliveryBuffer │ 64         │ Notifications queued for the sink    │
//	│ TaskTimeout    │ 0s         │ Default per-task deadline (0 = none) │
//	│ ProgressRate   │ 0          │ Progress reports/s per task (0 = all)│
//	│ ProgressBurst  │ 1          │ Reports allowed before throttling    │
//	└────────────────┴────────────┴──────────────────────────────────────┘
//
// # Environment
//
// Keys map to variables by upper-casing and replacing "." and "-" with
// "_": pool.workers becomes TASKPOOL_POOL_WORKERS.
package config
