// ABOUTME: Structured logger construction for the CLI, daemon and server
// ABOUTME: zap production config with ISO8601 time and LOG_LEVEL override
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Level is a zap level name; LOG_LEVEL and STUDYSYNC_LOG_LEVEL override it.
	Level string
	// File, when set, receives log lines in addition to stderr.
	File string
	// Quiet drops stderr output (used by the MCP server, whose stdout is the protocol).
	Quiet bool
}

// New builds a production logger.
func New(opts Options) (*zap.Logger, error) {
	config := zap.NewProductionConfig()

	level := opts.Level
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	if env := os.Getenv("STUDYSYNC_LOG_LEVEL"); env != "" {
		level = env
	}
	if level == "" {
		level = "warn"
	}
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	config.Level.SetLevel(parsed)

	config.OutputPaths = []string{}
	config.ErrorOutputPaths = []string{"stderr"}
	if !opts.Quiet {
		config.OutputPaths = append(config.OutputPaths, "stderr")
	}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		config.OutputPaths = append(config.OutputPaths, opts.File)
	}
	if len(config.OutputPaths) == 0 {
		return zap.NewNop(), nil
	}

	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
