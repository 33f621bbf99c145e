package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
	"github.com/vnykmshr/taskpool/pkg/common/logging"
	"github.com/vnykmshr/taskpool/pkg/common/validation"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TASKPOOL"

type Configuration struct {
	Pool      Pool    `mapstructure:"pool"`
	Redis     Redis   `mapstructure:"redis"`
	Events    Events  `mapstructure:"events"`
	Metrics   Metrics `mapstructure:"metrics"`
	Journal   Journal `mapstructure:"journal"`
	LogFormat string  `mapstructure:"log-format" default:"console"`
	LogLevel  string  `mapstructure:"log-level" default:"info"`
}

type Pool struct {
	Name           string        `mapstructure:"name" default:"taskpool"`
	Workers        int           `mapstructure:"workers" default:"5"`
	DeliveryBuffer int           `mapstructure:"delivery-buffer" default:"64"`
	TaskTimeout    time.Duration `mapstructure:"task-timeout" default:"0s"`

	// ProgressRate caps progress notifications per task per second; 0 disables.
	ProgressRate  float64 `mapstructure:"progress-rate" default:"0"`
	ProgressBurst int     `mapstructure:"progress-burst" default:"1"`
}

type Redis struct {
	// Addr enables the Redis sink when set.
	Addr    string        `mapstructure:"addr"`
	Prefix  string        `mapstructure:"prefix" default:"taskpool"`
	Timeout time.Duration `mapstructure:"timeout" default:"1s"`
}

type Events struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic" default:"taskpool.notifications"`
}

type Metrics struct {
	// Addr enables the /metrics endpoint when set, e.g. ":9090".
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace" default:"taskpool"`
}

type Journal struct {
	// Path enables the JSON-lines journal when set.
	Path          string        `mapstructure:"path"`
	FlushInterval time.Duration `mapstructure:"flush-interval" default:"1s"`
}

// NewConfiguration returns a configuration with every default applied.
func NewConfiguration() (*Configuration, error) {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return cfg, nil
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"workers":         "pool.workers",
	"delivery-buffer": "pool.delivery-buffer",
	"task-timeout":    "pool.task-timeout",
	"progress-rate":   "pool.progress-rate",
	"journal":         "journal.path",
	"redis-addr":      "redis.addr",
	"events":          "events.enabled",
	"metrics-addr":    "metrics.addr",
	"log-format":      "log-format",
	"log-level":       "log-level",
}

// BindFlags binds the known flags present in fs to v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Load resolves the configuration from defaults, the optional YAML file at
// path, the environment and any flags already bound to v.
func Load(v *viper.Viper, path string) (*Configuration, error) {
	cfg, err := NewConfiguration()
	if err != nil {
		return nil, err
	}
	registerDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, tperrors.NewOperationError("config", "Load", err).WithContext(path)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, tperrors.NewOperationError("config", "Load", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerDefaults makes every key known to viper so that environment
// variables are consulted during Unmarshal.
func registerDefaults(v *viper.Viper, cfg *Configuration) {
	v.SetDefault("pool.name", cfg.Pool.Name)
	v.SetDefault("pool.workers", cfg.Pool.Workers)
	v.SetDefault("pool.delivery-buffer", cfg.Pool.DeliveryBuffer)
	v.SetDefault("pool.task-timeout", cfg.Pool.TaskTimeout)
	v.SetDefault("pool.progress-rate", cfg.Pool.ProgressRate)
	v.SetDefault("pool.progress-burst", cfg.Pool.ProgressBurst)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.prefix", cfg.Redis.Prefix)
	v.SetDefault("redis.timeout", cfg.Redis.Timeout)
	v.SetDefault("events.enabled", cfg.Events.Enabled)
	v.SetDefault("events.topic", cfg.Events.Topic)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
	v.SetDefault("journal.path", cfg.Journal.Path)
	v.SetDefault("journal.flush-interval", cfg.Journal.FlushInterval)
	v.SetDefault("log-format", cfg.LogFormat)
	v.SetDefault("log-level", cfg.LogLevel)
}

// Validate checks the resolved values.
func (c *Configuration) Validate() error {
	return errors.Join(
		validation.ValidatePositive("config", "pool.workers", c.Pool.Workers),
		validation.ValidateNonNegative("config", "pool.delivery-buffer", c.Pool.DeliveryBuffer),
		validation.ValidateDuration("config", "pool.task-timeout", c.Pool.TaskTimeout),
		validateRate(c.Pool.ProgressRate),
		validation.ValidatePositive("config", "pool.progress-burst", c.Pool.ProgressBurst),
		validation.ValidateDuration("config", "redis.timeout", c.Redis.Timeout),
		validation.ValidateDuration("config", "journal.flush-interval", c.Journal.FlushInterval),
		validateFormat(c.LogFormat),
	)
}

func validateRate(rate float64) error {
	if rate < 0 {
		return tperrors.NewValidationError("config", "pool.progress-rate", rate, "cannot be negative").
			WithHint("use 0 to disable throttling")
	}
	return nil
}

func validateFormat(format string) error {
	switch format {
	case logging.FormatJSON, logging.FormatConsole:
		return nil
	}
	return tperrors.NewValidationError("config", "log-format", format, "unknown format").
		WithHint("use json or console")
}

// DebugMap returns the configuration as a map for structured logging.
func (c *Configuration) DebugMap() map[string]any {
	return map[string]any{
		"pool.name":            c.Pool.Name,
		"pool.workers":         c.Pool.Workers,
		"pool.delivery-buffer": c.Pool.DeliveryBuffer,
		"pool.task-timeout":    c.Pool.TaskTimeout.String(),
		"pool.progress-rate":   c.Pool.ProgressRate,
		"pool.progress-burst":  c.Pool.ProgressBurst,
		"redis.addr":           c.Redis.Addr,
		"redis.prefix":         c.Redis.Prefix,
		"events.enabled":       c.Events.Enabled,
		"events.topic":         c.Events.Topic,
		"metrics.addr":         c.Metrics.Addr,
		"metrics.namespace":    c.Metrics.Namespace,
		"journal.path":         c.Journal.Path,
		"log-format":           c.LogFormat,
		"log-level":            c.LogLevel,
	}
}
