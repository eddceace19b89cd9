// Package telemetry defines the logging, tracing, and metrics interfaces the
// scheduler and orchestrator depend on, plus noop and production-backed
// implementations. Consumers select an implementation at construction time;
// the scheduler and orchestrator depend only on these interfaces, never on a
// concrete backend.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Logger emits structured, leveled log lines tagged with key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters and timers for scheduler/orchestrator activity.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
}

// Span is the subset of an OpenTelemetry span the core needs.
type Span interface {
	End()
	RecordError(err error)
	SetAttributes(keyvals ...any)
}

// Tracer starts spans around scheduler and orchestrator operations.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

type noopMetrics struct{}

func (noopMetrics) IncCounter(string, float64, ...string)       {}
func (noopMetrics) RecordTimer(string, time.Duration, ...string) {}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

type noopSpan struct{}

func (noopSpan) End()                     {}
func (noopSpan) RecordError(error)        {}
func (noopSpan) SetAttributes(...any)     {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

// NewNoopTracer returns a Tracer that discards everything.
func NewNoopTracer() Tracer { return noopTracer{} }

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

func (s otelSpan) SetAttributes(keyvals ...any) {
	for _, attr := range attrsFromKeyvals(keyvals) {
		s.span.SetAttributes(attr)
	}
}

type otelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer builds a Tracer backed by the given OpenTelemetry tracer,
// grounded on the teacher's ClueTracer
// (_examples/goadesign-goa-ai/runtime/agent/telemetry/clue.go) but against
// the vanilla OTEL API directly rather than the goa-specific clue wrapper.
func NewOTelTracer(tracer trace.Tracer) Tracer {
	return otelTracer{tracer: tracer}
}

func (t otelTracer) Start(ctx context.Context, name string) (context.Context, Span) {
	newCtx, span := t.tracer.Start(ctx, name)
	return newCtx, otelSpan{span: span}
}
