// Package cli implements the taskpool command tree.
package cli

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vnykmshr/taskpool/internal/config"
	"github.com/vnykmshr/taskpool/pkg/common/logging"
)

type app struct {
	out        io.Writer
	v          *viper.Viper
	configPath string

	cfg           *config.Configuration
	logger        *zap.Logger
	restoreLogger func()
}

// NewRootCommand builds the taskpool command writing its output to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out, v: viper.New()}

	root := &cobra.Command{
		Use:               "taskpool",
		Short:             "Run background task patterns on a bounded worker pool",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	fs := root.PersistentFlags()
	fs.StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	fs.Int("workers", 5, "number of workers")
	fs.Int("delivery-buffer", 64, "notifications queued for the output before workers block")
	fs.Duration("task-timeout", 0, "default per-task deadline (0 disables)")
	fs.Float64("progress-rate", 0, "progress reports per second delivered for each task (0 delivers all)")
	fs.String("journal", "", "also append notifications as JSON lines to this file")
	fs.String("redis-addr", "", "also publish notifications to this Redis server")
	fs.Bool("events", false, "also log notifications from an in-process event stream")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", logging.FormatConsole, "log format: console or json")

	root.AddCommand(
		newTasksCommand(a),
		newBlockCommand(a),
		newComputeCommand(a),
		newLoadCommand(a),
		newDemoCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.BindFlags(a.v, cmd.Root().PersistentFlags()); err != nil {
		return err
	}

	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.restoreLogger = zap.ReplaceGlobals(logger)
	logger.Debug("configuration loaded", zap.Any("config", cfg.DebugMap()))
	return nil
}

func (a *app) teardown() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.restoreLogger != nil {
		a.restoreLogger()
		a.restoreLogger = nil
	}
}
