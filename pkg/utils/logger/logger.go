package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a named zap sugared logger
type Logger struct {
	*zap.SugaredLogger
}

var (
	root *zap.SugaredLogger
	once sync.Once
)

// Init configures the root logger. Console output in development, JSON in
// production. Safe to call more than once; only the first call wins.
func Init(level, env string) {
	once.Do(func() {
		encoderConfig := zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}

		var encoder zapcore.Encoder
		if env == "production" {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		}

		core := zapcore.NewCore(
			encoder,
			zapcore.AddSync(os.Stdout),
			zap.NewAtomicLevelAt(parseLevel(level)),
		)

		root = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	})
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// GetLogger returns a named logger, initializing defaults if needed
func GetLogger(name string) *Logger {
	if root == nil {
		Init("info", "development")
	}
	return &Logger{root.Named(name)}
}

// With returns a logger with additional structured context
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{l.SugaredLogger.With(args...)}
}

// Sync flushes buffered log entries
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}

// Sync flushes the root logger
func Sync() error {
	if root == nil {
		return nil
	}
	return root.Sync()
}
