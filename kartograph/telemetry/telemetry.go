// Package telemetry carries small OpenTelemetry helpers shared by the
// repository, worker and applier layers.
package telemetry

import (
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandleSpanError records err on the span and marks the span status as
// error. Safe to call with a nil span pointer or a nil error.
func HandleSpanError(span *trace.Span, message string, err error) {
	if span != nil && err != nil {
		(*span).SetStatus(codes.Error, message+": "+err.Error())
		(*span).RecordError(err)
	}
}
