// Package logging defines the structured logger used across identitybridge.
package logging

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging.
// This interface allows callers to plug in their own logging implementation.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger is a Logger implementation that does nothing.
// This is the default logger used when none is provided.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Nop returns the no-op logger.
func Nop() Logger {
	return &noopLogger{}
}

// zapLogger adapts a SugaredLogger's *w methods to Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (z *zapLogger) Debug(msg string, kv ...interface{}) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...interface{})  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...interface{})  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...interface{}) { z.s.Errorw(msg, kv...) }

// New returns a console logger writing to w at the given level
// ("debug", "info", "warn", "error"). An empty level means "warn".
func New(w io.Writer, level string) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(w),
		lvl,
	)

	return &zapLogger{s: zap.New(core).Sugar()}, nil
}

// parseLevel defaults an empty level to warn and leaves the rest to zapcore.
func parseLevel(level string) (zapcore.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.WarnLevel, fmt.Errorf("unknown log level: %w", err)
	}
	return lvl, nil
}
