package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	log *zap.Logger = zap.NewNop()
	mu  sync.RWMutex
)

// Init configures the global logger. Safe to call again to switch debug level.
func Init(debug bool) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Building from a stock config should not fail; keep the previous logger.
		return
	}

	mu.Lock()
	log = l
	mu.Unlock()
}

// Sync flushes any buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = log.Sync()
}

func Debug(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	log.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	log.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	log.Fatal(msg, fields...)
}
