// Package logging builds the zap logger shared by the viewer components.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config carries the parameters required to construct a logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Empty means "info".
	Level string `mapstructure:"level"`
	// Format is "json" or "console". Empty means "console".
	Format string `mapstructure:"format"`
	// OutputPaths defaults to stderr.
	OutputPaths []string `mapstructure:"output_paths"`
}

// New constructs a logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(cfg.Format) {
	case "", "console":
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case "json":
		zc.Encoding = "json"
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	} else {
		zc.OutputPaths = []string{"stderr"}
	}

	return zc.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func parseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return level, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}
