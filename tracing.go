package authclient

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	spanExchange = "authclient.exchange"
	spanRefresh  = "authclient.refresh"
	spanDispatch = "authclient.dispatch"
	spanLogout   = "authclient.logout"
)

// resolveTracer picks the tracer for a client. An explicit provider wins;
// otherwise the global provider is used when tracing is enabled.
func resolveTracer(cfg TracingConfig, tp trace.TracerProvider) trace.Tracer {
	if tp != nil {
		return tp.Tracer(cfg.TracerName)
	}
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer(cfg.TracerName)
	}
	return otel.Tracer(cfg.TracerName)
}

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// endSpan records the outcome of a traced operation and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		if e, ok := AsError(err); ok {
			span.SetAttributes(attribute.String("authclient.error_kind", e.Kind.String()))
			if e.Status != 0 {
				span.SetAttributes(attribute.Int("http.response.status_code", e.Status))
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
