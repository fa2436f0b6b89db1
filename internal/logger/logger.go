package logger

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	output = mustBuild("info")
)

func mustBuild(level string) *zap.Logger {
	l, err := build(level)
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func build(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.OutputPaths = []string{"stdout"}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// Init rebuilds the process logger at the given level ("debug", "info", ...).
func Init(level string) error {
	l, err := build(level)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

// Set replaces the process logger. Tests use it with zaptest/observer.
func Set(l *zap.Logger) {
	mu.Lock()
	output = l
	mu.Unlock()
}

// L returns the process logger for callers that want typed zap fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return output
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

func emit(level zapcore.Level, msg string, extra map[string]interface{}) {
	l := L()
	if ce := l.Check(level, msg); ce != nil {
		ce.Write(fields(extra)...)
	}
}

func fields(extra map[string]interface{}) []zap.Field {
	if len(extra) == 0 {
		return nil
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := extra[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, extra[k]))
	}
	return []zap.Field{zap.Dict("extra", out...)}
}

func Debug(msg string, extra map[string]interface{}) {
	emit(zapcore.DebugLevel, msg, extra)
}

func Info(msg string, extra map[string]interface{}) {
	emit(zapcore.InfoLevel, msg, extra)
}

func Warn(msg string, extra map[string]interface{}) {
	emit(zapcore.WarnLevel, msg, extra)
}

func Error(msg string, extra map[string]interface{}) {
	emit(zapcore.ErrorLevel, msg, extra)
}
