package tracing

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey string

const runIDKey contextKey = "run_id"

// RunIDFromContext returns the run GUID stored in ctx, or "".
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithRunID stores the run GUID. An empty id leaves ctx unchanged.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// TraceIDFromContext returns the active span's trace id, or "" when there is
// no sampled span.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
