package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// scrubbingExporter removes credential text from span attributes, event
// attributes, and status descriptions before export. Critique and source
// failures are recorded on stage spans and may quote upstream errors.
type scrubbingExporter struct {
	wrapped sdktrace.SpanExporter
}

func newScrubbingExporter(wrapped sdktrace.SpanExporter) sdktrace.SpanExporter {
	return &scrubbingExporter{wrapped: wrapped}
}

func (e *scrubbingExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	out := make([]sdktrace.ReadOnlySpan, len(spans))
	for i, span := range spans {
		out[i] = scrubSpan(span)
	}
	return e.wrapped.ExportSpans(ctx, out)
}

func (e *scrubbingExporter) Shutdown(ctx context.Context) error {
	return e.wrapped.Shutdown(ctx)
}

func scrubSpan(span sdktrace.ReadOnlySpan) sdktrace.ReadOnlySpan {
	dirty := ContainsCredential(span.Status().Description) || attributesDirty(span.Attributes())
	for _, event := range span.Events() {
		dirty = dirty || attributesDirty(event.Attributes)
	}
	if !dirty {
		return span
	}

	stub := tracetest.SpanStubFromReadOnlySpan(span)
	stub.Attributes = scrubAttributes(stub.Attributes)
	for i := range stub.Events {
		stub.Events[i].Attributes = scrubAttributes(stub.Events[i].Attributes)
	}
	stub.Status.Description = ScrubCredentials(stub.Status.Description)
	return stub.Snapshot()
}

func attributesDirty(attrs []attribute.KeyValue) bool {
	for _, attr := range attrs {
		if attr.Value.Type() == attribute.STRING && ContainsCredential(attr.Value.AsString()) {
			return true
		}
	}
	return false
}

func scrubAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, attr := range attrs {
		out[i] = attr
		if attr.Value.Type() == attribute.STRING {
			if value := attr.Value.AsString(); ContainsCredential(value) {
				out[i] = attr.Key.String(ScrubCredentials(value))
			}
		}
	}
	return out
}
