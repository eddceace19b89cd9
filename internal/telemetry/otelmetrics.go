package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelMetrics adapts an OTEL meter to the Metrics interface, grounded on the
// teacher's ClueMetrics
// (_examples/goadesign-goa-ai/runtime/agent/telemetry/clue.go) which
// likewise lazily creates a counter/histogram per metric name on first use.
type otelMetrics struct {
	meter metric.Meter
}

// NewOTelMetrics builds a Metrics backed by the given OTEL meter.
func NewOTelMetrics(meter metric.Meter) Metrics {
	return &otelMetrics{meter: meter}
}

func (m *otelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *otelMetrics) RecordTimer(name string, d time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), float64(d)/float64(time.Millisecond), metric.WithAttributes(tagAttrs(tags)...))
}

// tagAttrs interprets tags as alternating key, value pairs, dropping a
// trailing unpaired key.
func tagAttrs(tags []string) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(tags)/2)
	for i := 0; i+1 < len(tags); i += 2 {
		out = append(out, attribute.String(tags[i], tags[i+1]))
	}
	return out
}
