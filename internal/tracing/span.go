package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Phase runs fn inside a "phase.<name>" span and records its error.
// A nil tracer runs fn untraced.
func Phase(ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) error, attrs ...attribute.KeyValue) error {
	if tracer == nil {
		return fn(ctx)
	}
	ctx, span := tracer.Start(ctx, SpanPrefixPhase+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	err := fn(ctx)
	End(span, err)
	return err
}

// End sets the span status from err. It does not end the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Start opens a span on tracer, falling back to the span already in ctx
// (usually a no-op) when tracer is nil.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
