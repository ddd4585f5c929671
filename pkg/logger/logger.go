package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var (
	mu   sync.RWMutex
	base *zap.Logger
	once sync.Once
)

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Init replaces the process logger. Console encoding unless jsonOutput is set.
func Init(lvl string, jsonOutput bool) error {
	cfg := zap.NewProductionConfig()
	if !jsonOutput {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level.SetLevel(parseLevel(lvl))
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return err
	}

	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// SetLevel changes the minimum level at runtime.
func SetLevel(l LogLevel) {
	switch l {
	case DEBUG:
		level.SetLevel(zapcore.DebugLevel)
	case WARN:
		level.SetLevel(zapcore.WarnLevel)
	case ERROR:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func get() *zap.Logger {
	once.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if base != nil {
			return
		}
		cfg := zap.NewProductionConfig()
		cfg.Level = level
		l, err := cfg.Build(zap.AddCallerSkip(2))
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	})
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func toFields(component string, fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	if component != "" {
		out = append(out, zap.String("component", component))
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func logMessage(l zapcore.Level, component, message string, fields map[string]interface{}) {
	z := get()
	if ce := z.Check(l, message); ce != nil {
		ce.Write(toFields(component, fields)...)
	}
}

func Debug(message string) {
	logMessage(zapcore.DebugLevel, "", message, nil)
}

func DebugC(component string, message string) {
	logMessage(zapcore.DebugLevel, component, message, nil)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.DebugLevel, component, message, fields)
}

func Info(message string) {
	logMessage(zapcore.InfoLevel, "", message, nil)
}

func InfoC(component string, message string) {
	logMessage(zapcore.InfoLevel, component, message, nil)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.InfoLevel, component, message, fields)
}

func Warn(message string) {
	logMessage(zapcore.WarnLevel, "", message, nil)
}

func WarnC(component string, message string) {
	logMessage(zapcore.WarnLevel, component, message, nil)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.WarnLevel, component, message, fields)
}

func Error(message string) {
	logMessage(zapcore.ErrorLevel, "", message, nil)
}

func ErrorC(component string, message string) {
	logMessage(zapcore.ErrorLevel, component, message, nil)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(zapcore.ErrorLevel, component, message, fields)
}
