package observability

import (
	"context"
	"log/slog"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// traceLogHandler adds trace_id and span_id from the active span and scrubs
// credentials from string and error attributes before delegating.
type traceLogHandler struct {
	inner slog.Handler
}

// NewTraceLogHandler wraps inner, or the default handler when inner is nil.
func NewTraceLogHandler(inner slog.Handler) slog.Handler {
	if inner == nil {
		inner = slog.Default().Handler()
	}
	return &traceLogHandler{inner: inner}
}

func (h *traceLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *traceLogHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(scrubAttr(attr))
		return true
	})

	span := oteltrace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() && span.IsRecording() {
		sc := span.SpanContext()
		out.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.inner.Handle(ctx, out)
}

func (h *traceLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		scrubbed[i] = scrubAttr(attr)
	}
	return &traceLogHandler{inner: h.inner.WithAttrs(scrubbed)}
}

func (h *traceLogHandler) WithGroup(name string) slog.Handler {
	return &traceLogHandler{inner: h.inner.WithGroup(name)}
}

func scrubAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		if text := value.String(); ContainsCredential(text) {
			return slog.String(attr.Key, ScrubCredentials(text))
		}
	case slog.KindGroup:
		group := value.Group()
		scrubbed := make([]any, len(group))
		for i, member := range group {
			scrubbed[i] = scrubAttr(member)
		}
		return slog.Group(attr.Key, scrubbed...)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok && err != nil {
			if text := err.Error(); ContainsCredential(text) {
				return slog.String(attr.Key, ScrubCredentials(text))
			}
		}
	}
	return slog.Attr{Key: attr.Key, Value: value}
}
