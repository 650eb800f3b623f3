// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span from the context using the global tracer.
//
// Description:
//
//	Convenience wrapper that uses otel.Tracer() to create spans without
//	explicitly managing tracer instances. Uses consistent naming conventions.
//
// Inputs:
//
//	ctx - Parent context. May contain existing span context.
//	tracerName - Tracer name (typically package path, e.g., "chronograph.versioning").
//	spanName - Span name (typically "package.Type.Method" or operation name).
//	opts - Optional span start options (attributes, links, etc.).
//
// Outputs:
//
//	context.Context - Context with the new span attached.
//	trace.Span - The created span. Caller must call span.End().
//
// Example:
//
//	func syncMirror(ctx context.Context, branch string) error {
//	    ctx, span := telemetry.StartSpan(ctx, "chronograph.mirror", "mirror.Sync",
//	        trace.WithAttributes(attribute.String("branch", branch)),
//	    )
//	    defer span.End()
//	    // ... resolve head and push to the mirror
//	}
//
// Thread Safety: Safe for concurrent use.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// SpanFromContext returns the current span from the context.
//
// Returns a no-op span if no span is present, so callers never need a nil
// check before adding events or attributes.
//
// Thread Safety: Safe for concurrent use.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// RecordError records an error on the current span with proper status.
//
// Description:
//
//	Records the error as a span event and sets the span status to Error.
//	If the span or error is nil, this is a no-op.
//
// Inputs:
//
//	span - The span to record the error on. May be nil.
//	err - The error to record. May be nil.
//	attrs - Optional additional attributes to record with the error.
//
// Example:
//
//	result, err := engine.Commit(ctx, scope, msg)
//	if err != nil {
//	    telemetry.RecordError(span, err, attribute.String("operation", "commit"))
//	    return err
//	}
//
// Thread Safety: Safe for concurrent use.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	opts := make([]trace.EventOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	span.RecordError(err, opts...)

	span.SetStatus(codes.Error, err.Error())
}

// RecordErrorf records a formatted error message on the current span.
//
// Useful when you want to add context to an error before recording.
// If the span is nil, this is a no-op.
//
// Thread Safety: Safe for concurrent use.
func RecordErrorf(span trace.Span, format string, args ...interface{}) {
	if span == nil {
		return
	}
	err := fmt.Errorf(format, args...)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
//
// Sets the span status to OK. Use this when an operation completes
// successfully and you want to explicitly mark the span. Safe to call
// with a nil span.
//
// Thread Safety: Safe for concurrent use.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
//
// Description:
//
//	Records a timestamped event on the span. Events are useful for
//	marking significant points in a span's lifecycle.
//
// Inputs:
//
//	span - The span to add the event to. May be nil.
//	name - Event name describing what happened.
//	attrs - Optional attributes to include with the event.
//
// Example:
//
//	telemetry.AddSpanEvent(span, "snapshot_restored", attribute.String("version_id", id))
//
// Thread Safety: Safe for concurrent use.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the span.
//
// Adds or updates attributes on the span. Safe to call with a nil span.
//
// Example:
//
//	telemetry.SetSpanAttributes(span,
//	    attribute.Int("delta_count", len(deltas)),
//	    attribute.String("branch", branch),
//	)
//
// Thread Safety: Safe for concurrent use.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

// TraceID returns the trace ID from the context as a string.
//
// Returns the hex-encoded trace ID, or an empty string if no valid span
// context is present.
//
// Thread Safety: Safe for concurrent use.
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// SpanID returns the span ID from the context as a string.
//
// Returns the hex-encoded span ID, or an empty string if no valid span
// context is present.
//
// Thread Safety: Safe for concurrent use.
func SpanID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.SpanID().String()
}

// HasActiveSpan returns true if the context contains a valid, recording span.
//
// Useful for conditional instrumentation around expensive attribute
// construction.
//
// Thread Safety: Safe for concurrent use.
func HasActiveSpan(ctx context.Context) bool {
	span := trace.SpanFromContext(ctx)
	return span.SpanContext().IsValid() && span.IsRecording()
}

// LoggerWithTrace returns a logger with trace context fields.
//
// Description:
//
//	Extracts trace_id and span_id from the context and adds them to the
//	logger for correlation with distributed traces. Returns the logger
//	unchanged when no valid span is present. A nil logger falls back to
//	slog.Default().
//
// Inputs:
//
//	ctx - Context that may contain trace information. May be nil.
//	logger - Base logger to extend. May be nil.
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id and span_id if available.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// LoggerWithBranch returns a logger annotated with a branch name.
//
// Adds trace correlation fields when the context carries a span, then the
// branch field. Use for log lines inside branch-scoped operations.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithBranch(ctx context.Context, logger *slog.Logger, branch string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(slog.String("branch", branch))
}

// LoggerWithVersion returns a logger annotated with a version ID.
//
// Adds trace correlation fields when the context carries a span, then the
// version_id field. Use for log lines inside version-scoped operations.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithVersion(ctx context.Context, logger *slog.Logger, versionID string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(slog.String("version_id", versionID))
}
