package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartGenerateSpan creates the span covering one whole failover run.
func StartGenerateSpan(ctx context.Context, taskType string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "orchestrator.generate",
		trace.WithAttributes(attribute.String("generate.task_type", taskType)),
	)
}

// StartAttemptSpan creates a child span for a single provider attempt.
func StartAttemptSpan(ctx context.Context, provider, model string, attempt int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "orchestrator.attempt",
		trace.WithAttributes(
			attribute.String("attempt.provider", provider),
			attribute.String("attempt.model", model),
			attribute.Int("attempt.number", attempt),
		),
	)
}

// StartUpstreamSpan creates a client span for an upstream HTTP call.
func StartUpstreamSpan(ctx context.Context, url, provider string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "upstream.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.url", url),
			attribute.String("upstream.provider", provider),
		),
	)
}

// InjectHeaders injects the current trace context (traceparent, tracestate)
// into req so the upstream service can continue the trace.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// SetGenerateResult tags the current span with the provider that answered.
func SetGenerateResult(ctx context.Context, provider, model string, providersTried int) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("generate.provider", provider),
		attribute.String("generate.model", model),
		attribute.Int("generate.providers_tried", providersTried),
	)
}

// RecordError records err on the current span and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
