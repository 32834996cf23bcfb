// Package logger builds the orchestrator's zap.Logger, grounded on the
// teacher's logger factory (level/format/output-path config, console vs
// JSON encoding).
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Every log line in one invocation shares the same coordinates: the
// benchmark instance and ablation variant being run. ForRun stamps them
// onto a child logger; cmd/aprloop calls it once at startup and threads
// the result through every component instead of each one re-deriving them.

// Config controls log level, encoding, and output destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or a file path
}

// New builds a zap.Logger from Config, defaulting to info level on an
// unparseable Level.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{cfg.OutputPath},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}

// ForRun returns a child logger with the bug instance's pid, bid, and
// ablation variant attached to every subsequent line it emits — every
// component the orchestrator wires (sandbox, applier, adapter client,
// LLM client, telemetry hub) logs through this one child rather than the
// bare base logger, so a run's log stream can be filtered to one
// instance without the caller passing those three fields at every call
// site.
func ForRun(base *zap.Logger, pid string, bid int, variant string) *zap.Logger {
	return base.With(
		zap.String("pid", pid),
		zap.Int("bid", bid),
		zap.String("variant", variant),
	)
}
