package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// zapLogger adapts a *zap.Logger to the Logger interface.
type zapLogger struct {
	l *zap.SugaredLogger
}

// NewZapLogger builds a Logger backed by the given zap logger.
func NewZapLogger(l *zap.Logger) Logger {
	return zapLogger{l: l.Sugar()}
}

func (z zapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	z.l.Debugw(msg, keyvals...)
}

func (z zapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	z.l.Infow(msg, keyvals...)
}

func (z zapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	z.l.Warnw(msg, keyvals...)
}

func (z zapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	z.l.Errorw(msg, keyvals...)
}
