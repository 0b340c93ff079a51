// Package zaplog adapts go.uber.org/zap to the chatlink.Logger interface
// and builds the loggers used by the binaries.
package zaplog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger implements chatlink.Logger on top of a *zap.Logger.
type Logger struct {
	l *zap.Logger
}

// New wraps l. The module name is attached to every entry.
func New(l *zap.Logger, module string) *Logger {
	if module != "" {
		l = l.With(zap.String("module", module))
	}
	return &Logger{l: l.WithOptions(zap.AddCallerSkip(1))}
}

func (z *Logger) Debug(msg string, fields map[string]any) { z.l.Debug(msg, toFields(fields)...) }
func (z *Logger) Info(msg string, fields map[string]any)  { z.l.Info(msg, toFields(fields)...) }
func (z *Logger) Warn(msg string, fields map[string]any)  { z.l.Warn(msg, toFields(fields)...) }
func (z *Logger) Error(msg string, fields map[string]any) { z.l.Error(msg, toFields(fields)...) }

// Zap returns the underlying logger.
func (z *Logger) Zap() *zap.Logger { return z.l }

func toFields(m map[string]any) []zap.Field {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := m[k].(error); ok {
			fields = append(fields, zap.NamedError(k, err))
			continue
		}
		fields = append(fields, zap.Any(k, m[k]))
	}
	return fields
}

// ParseLevel maps debug|info|warn|warning|error to a zapcore.Level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// NewRotating returns a JSON logger writing to a size-rotated file.
// The terminal client uses it because the UI owns stdout.
func NewRotating(path string, level zapcore.Level) *zap.Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(rotator), level)
	return zap.New(core, zap.AddCaller())
}

// NewProduction returns a JSON logger on stdout.
func NewProduction(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig = encoderConfig()
	cfg.OutputPaths = []string{"stdout"}
	return cfg.Build()
}

// NewConsole returns a human readable logger on stderr.
func NewConsole(level zapcore.Level) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.MessageKey = "message"
	return enc
}
