// Package monitoring provides structured logging for the audit batch job.
package monitoring

import (
	"io"
	"log/slog"
	"os"
)

// LogFormat selects the handler encoding.
type LogFormat int

const (
	FormatJSON LogFormat = iota
	FormatText
)

// LoggerConfig configures NewLogger.
type LoggerConfig struct {
	Level     slog.Level
	Format    LogFormat
	Output    io.Writer
	Component string
}

// NewLogger builds a slog.Logger for one component. JSON output by default;
// text for local runs. Debug level adds source locations.
func NewLogger(config LoggerConfig) *slog.Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.Level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch config.Format {
	case FormatText:
		handler = slog.NewTextHandler(config.Output, opts)
	default:
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	logger := slog.New(handler)
	if config.Component != "" {
		logger = logger.With("component", config.Component)
	}
	return logger
}
