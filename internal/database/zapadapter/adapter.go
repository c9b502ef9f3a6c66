// Package zapadapter routes pgx and badger logs into a go.uber.org/zap.Logger.
package zapadapter

import (
	"context"

	"collabhub/pkg/logger"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger implements tracelog.Logger.
type Logger struct {
	logger *zap.Logger
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (pl *Logger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	fields := make([]zapcore.Field, 0, len(data)+1)
	if id, ok := logger.RequestIDFromContext(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case tracelog.LogLevelTrace:
		pl.logger.Debug(msg, append(fields, zap.Stringer("PGX_LOG_LEVEL", level))...)
	case tracelog.LogLevelDebug:
		pl.logger.Debug(msg, fields...)
	case tracelog.LogLevelInfo:
		pl.logger.Info(msg, fields...)
	case tracelog.LogLevelWarn:
		pl.logger.Warn(msg, fields...)
	case tracelog.LogLevelError:
		pl.logger.Error(msg, fields...)
	default:
		pl.logger.Error(msg, append(fields, zap.Stringer("PGX_LOG_LEVEL", level))...)
	}
}

// BadgerLogger implements badger.Logger.
type BadgerLogger struct {
	sugar *zap.SugaredLogger
}

func NewBadgerLogger(logger *zap.SugaredLogger) *BadgerLogger {
	return &BadgerLogger{sugar: logger.Desugar().WithOptions(zap.AddCallerSkip(2)).Sugar()}
}

func (b *BadgerLogger) Errorf(format string, args ...interface{})   { b.sugar.Errorf(format, args...) }
func (b *BadgerLogger) Warningf(format string, args ...interface{}) { b.sugar.Warnf(format, args...) }
func (b *BadgerLogger) Infof(format string, args ...interface{})    { b.sugar.Infof(format, args...) }
func (b *BadgerLogger) Debugf(format string, args ...interface{})   { b.sugar.Debugf(format, args...) }
