package observability

import (
	"context"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// LogExporter writes finished spans to the service log, one record per span.
type LogExporter struct {
	log     *logger.Logger
	stopped atomic.Bool
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter creates a LogExporter.
func NewLogExporter(log *logger.Logger) *LogExporter {
	if log == nil {
		log = logger.Default()
	}
	return &LogExporter{log: log}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, s := range spans {
		args := []any{
			"span", s.Name(),
			"trace_id", s.SpanContext().TraceID().String(),
			"span_id", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		}
		if s.Parent().IsValid() {
			args = append(args, "parent_span_id", s.Parent().SpanID().String())
		}
		for _, kv := range s.Attributes() {
			args = append(args, string(kv.Key), kv.Value.AsInterface())
		}
		e.log.InfoContext(ctx, "Span finished", args...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter. Later exports are dropped.
func (e *LogExporter) Shutdown(context.Context) error {
	e.stopped.Store(true)
	return nil
}
