package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for query operations.
	TracerName = "epctl.query"
)

// Span attribute keys
const (
	AttrClientID   = "client_id"
	AttrBatchID    = "batch_id"
	AttrQueryType  = "query_type"
	AttrTool       = "tool"
	AttrRequests   = "total_requests"
	AttrSuccesses  = "successful_requests"
	AttrAttempts   = "attempts"
	AttrCached     = "cached"
	AttrDurationMs = "duration_ms"
	AttrErrorCode  = "error_code"
)

// Span names
const (
	SpanProcessQuery = "query.process"
	SpanParse        = "query.parse"
	SpanExecuteBatch = "query.execute_batch"
	SpanSubRequest   = "query.sub_request"
	SpanAggregate    = "query.aggregate"
	SpanInsights     = "query.insights"
)

// Tracer provides distributed tracing for query operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new query tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartQuerySpan starts the root span for one comprehensive query.
func (t *Tracer) StartQuerySpan(ctx context.Context, clientID, batchID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanProcessQuery,
		trace.WithAttributes(
			attribute.String(AttrClientID, clientID),
		),
	)
	if batchID != "" {
		span.SetAttributes(attribute.String(AttrBatchID, batchID))
	}
	return ctx, span
}

// StartStageSpan starts a span for one pipeline stage (parse, execute_batch,
// aggregate, insights). Callers may pass the bare stage or a Span* constant;
// the emitted name is always singly qualified.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, qualifyStage(stage))
}

// qualifyStage prefixes a bare stage name with the span namespace without
// doubling it for already-qualified names.
func qualifyStage(stage string) string {
	if strings.HasPrefix(stage, "query.") {
		return stage
	}
	return "query." + stage
}

// StartSubRequestSpan starts a span for one gateway sub-request.
func (t *Tracer) StartSubRequestSpan(ctx context.Context, queryType, tool string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSubRequest,
		trace.WithAttributes(
			attribute.String(AttrQueryType, queryType),
			attribute.String(AttrTool, tool),
		),
	)
}

// RecordOutcome records the batch outcome on a span.
func RecordOutcome(span trace.Span, total, successful int) {
	span.SetAttributes(
		attribute.Int(AttrRequests, total),
		attribute.Int(AttrSuccesses, successful),
	)
}

// RecordError marks the span failed and records the error.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
