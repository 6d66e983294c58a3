package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Request keys follow the HTTP semantic conventions; the
// crankbench.* keys describe the load shape.
const (
	keyMethod       = "http.request.method"
	keyURL          = "url.full"
	keyRequestSize  = "http.request.body.size"
	keyStatusCode   = "http.response.status_code"
	keyResponseSize = "http.response.body.size"

	keyRunID     = "crankbench.run_id"
	keyWorkers   = "crankbench.workers"
	keyPlanMode  = "crankbench.plan.mode"
	keyPlanItems = "crankbench.plan.items"
	keyLagPolicy = "crankbench.lag_policy"
	keyWorker    = "crankbench.worker"
	keyOutcome   = "crankbench.outcome"
	keySkipped   = "crankbench.lag.skipped"
)

// Outcome values match how the stats engine classifies a request.
const (
	OutcomeOK             = "ok"
	OutcomeNot2xx         = "not_2xx"
	OutcomeTransportError = "transport_error"
)

// StartRequest opens the client span for one request issued by worker.
func (p *Provider) StartRequest(ctx context.Context, worker int, method, url string, bodyBytes int) (context.Context, trace.Span) {
	return p.Tracer().Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(keyMethod, method),
			attribute.String(keyURL, url),
			attribute.Int(keyWorker, worker),
			attribute.Int(keyRequestSize, bodyBytes),
		),
	)
}

// EndRequest closes a request span. A non-2xx status is an error span, the
// same way it counts as failed in the report.
func EndRequest(span trace.Span, status int, responseBytes int64, err error) {
	switch {
	case err != nil:
		span.SetAttributes(attribute.String(keyOutcome, OutcomeTransportError))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case status < 200 || status > 299:
		span.SetAttributes(
			attribute.Int(keyStatusCode, status),
			attribute.Int64(keyResponseSize, responseBytes),
			attribute.String(keyOutcome, OutcomeNot2xx),
		)
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
	default:
		span.SetAttributes(
			attribute.Int(keyStatusCode, status),
			attribute.Int64(keyResponseSize, responseBytes),
			attribute.String(keyOutcome, OutcomeOK),
		)
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordLag emits a span for items a worker skipped after falling behind the
// broadcast buffer.
func (p *Provider) RecordLag(ctx context.Context, worker int, skipped uint64) {
	_, span := p.Tracer().Start(ctx, "broadcast lag",
		trace.WithAttributes(
			attribute.Int(keyWorker, worker),
			attribute.Int64(keySkipped, int64(skipped)),
		),
	)
	span.SetStatus(codes.Error, fmt.Sprintf("%d items skipped", skipped))
	span.End()
}

// InjectHeaders writes W3C trace context into h when propagation is on.
func (p *Provider) InjectHeaders(ctx context.Context, h http.Header) {
	if !p.ShouldPropagate() {
		return
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}
