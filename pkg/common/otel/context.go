package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// EmptyTraceID is logged for records written outside any sampled span.
const EmptyTraceID = "00000000000000000000000000000000"

// GetTraceID returns the trace id of the span carried by ctx, or EmptyTraceID.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return EmptyTraceID
	}
	return sc.TraceID().String()
}
