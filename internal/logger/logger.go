// Package logger holds the process-wide zap logger.
// Until Init is called every call is a no-op, which keeps tests quiet.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	log   = zap.NewNop()
	debug bool
)

// Init builds the logger. Debug mode switches to the human-readable
// development encoder and enables debug level.
func Init(debugEnabled bool) error {
	var cfg zap.Config
	if debugEnabled {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.OutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	Set(l)
	mu.Lock()
	debug = debugEnabled
	mu.Unlock()

	if debugEnabled {
		l.Debug("debug logging enabled")
	}
	return nil
}

// Set replaces the logger. Useful for tests that want to observe output.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// L returns the current logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func IsDebug() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debug
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}
