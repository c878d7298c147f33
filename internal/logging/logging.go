// Package logging builds the shared zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger writing to stderr and, when path is
// non-empty, to the log file as well.
func New(path, level string) (*zap.Logger, error) {
	outputs := []string{"stderr"}
	if path != "" {
		outputs = append(outputs, path)
	}
	return build(outputs, level, path)
}

// NewQuiet builds a file-only logger for processes whose stdio carries
// protocol framing, such as the native messaging host. Nothing is ever
// written to stdout or stderr.
func NewQuiet(path, level string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	return build([]string{path}, level, path)
}

func build(outputs []string, level, path string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging: unknown level %q: %w", level, err)
		}
		lvl = parsed
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log dir: %w", err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = outputs
	cfg.ErrorOutputPaths = outputs
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return logger, nil
}
