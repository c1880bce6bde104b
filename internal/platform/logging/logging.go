// Package logging builds the process logger. Verbosity follows the command
// line: 0 shows warnings only, 1 adds progress messages, 2 and above add the
// detailed load and write messages.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level maps a verbosity count to a zap level.
func Level(verbosity int) zapcore.Level {
	switch {
	case verbosity <= 0:
		return zapcore.WarnLevel
	case verbosity == 1:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// New returns a console logger at the level for verbosity writing to
// outputPaths, stderr when none are given.
func New(verbosity int, outputPaths ...string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(Level(verbosity))
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	if len(outputPaths) > 0 {
		cfg.OutputPaths = outputPaths
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
