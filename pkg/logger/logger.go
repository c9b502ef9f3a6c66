package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Environment string
	Level       string
	Service     string
}

// New builds a zap logger. Development environments get a colored console
// encoder, everything else gets JSON on stdout.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Environment == "" || cfg.Environment == "development" {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	l, err := zc.Build()
	if err != nil {
		return nil, err
	}
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	return l, nil
}

// Global logger instance
var global = zap.NewNop().Sugar()

// SetGlobal replaces the logger behind the package-level helpers.
func SetGlobal(l *zap.Logger) {
	global = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

// Named returns a child of the global logger for injection into components.
func Named(name string) *zap.SugaredLogger {
	return global.Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().Named(name)
}

// Convenience functions
func Info(format string, v ...interface{}) {
	global.Infof(format, v...)
}

func Warn(format string, v ...interface{}) {
	global.Warnf(format, v...)
}

func Error(format string, v ...interface{}) {
	global.Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	global.Debugf(format, v...)
}

func Fatal(format string, v ...interface{}) {
	global.Errorf(format, v...)
	_ = global.Sync()
	os.Exit(1)
}
