// Package logging builds the zap loggers used by taskpool binaries.
//
// Library packages never construct loggers themselves: they accept an
// optional *zap.Logger and fall back to zap.L(), which is a no-op until a
// binary installs a logger with zap.ReplaceGlobals.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
)

// Supported output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a logger for the given level ("debug", "info", "warn",
// "error") and format ("json" or "console").
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, tperrors.NewValidationError("logging", "level", level, "unknown level").
			WithHint("use debug, info, warn or error")
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case FormatJSON, "":
		cfg = zap.NewProductionConfig()
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, tperrors.NewValidationError("logging", "format", format, "unknown format").
			WithHint("use json or console")
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Or returns l, or the named global logger when l is nil.
func Or(l *zap.Logger, name string) *zap.Logger {
	if l == nil {
		l = zap.L()
	}
	return l.Named(name)
}
