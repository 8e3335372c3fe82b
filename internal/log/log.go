package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Init builds the global logger for the given environment. "production"
// gets zap's JSON production config; anything else gets the colored
// development console encoder. Output goes to stderr in both cases.
func Init(env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	old := logger
	logger = l.Sugar()
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		_ = l.Sync()
	}
}

func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	get().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	get().Infow(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	get().Errorw(msg, extended...)
}

// get returns the global logger, falling back to a development logger when
// Init was never called (tests, library use).
func get() *zap.SugaredLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	if err := Init("development"); err != nil {
		mu.Lock()
		logger = zap.NewNop().Sugar()
		mu.Unlock()
	}
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
