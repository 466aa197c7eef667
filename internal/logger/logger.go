// Package logger builds the zap logger used across the monitor.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger's level, encoding and sinks.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string

	// Format is json or console. Empty means json.
	Format string

	// Outputs are zap output paths ("stdout", "stderr" or file paths).
	// Empty means stdout. Duplicates and blank entries are dropped.
	Outputs []string
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var cfg zap.Config
	switch strings.ToLower(opts.Format) {
	case "", "json":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q: must be json or console", opts.Format)
	}

	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = outputPaths(opts.Outputs)
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// Must is like New but falls back to a production logger on error.
func Must(opts Options) *zap.Logger {
	l, err := New(opts)
	if err == nil {
		return l
	}
	l, err = zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func outputPaths(outputs []string) []string {
	var paths []string
	seen := map[string]struct{}{}
	for _, o := range outputs {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		paths = append(paths, o)
	}
	if len(paths) == 0 {
		return []string{"stdout"}
	}
	return paths
}
