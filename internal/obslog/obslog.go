// Package obslog builds the single process-wide structured logger every
// long-lived component takes by constructor injection, in place of the
// teacher's bare log.Println/log.Fatalf calls. Grounded on
// yarpc-yarpc-go's internal/observerware, which threads a *zap.Logger
// field through its constructors rather than reaching for a package-level
// logger.
package obslog

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a console-encoded zap.Logger at the given level name
// ("debug", "info", "warn", "error"; unrecognized values fall back to
// "info").
func New(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
