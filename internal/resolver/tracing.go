package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "moalmanac-api/resolver"

// spanEnder closes a resolver span, recording err and any late attributes.
type spanEnder func(err error, attrs ...attribute.KeyValue)

func traceResolver(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, spanEnder) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error, attrs ...attribute.KeyValue) {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(append(attrs, attribute.String("resolver.outcome", outcome))...)
		span.End()
	}
}
