package middleware

import (
	"log/slog"
	"net/http"

	"moalmanac-api/internal/logging"
	"moalmanac-api/internal/observability"

	"go.opentelemetry.io/otel"
)

// TracingMiddleware wraps an API route in an inner span named after the
// route and attaches the trace ids to the request logger.
func TracingMiddleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracer := otel.Tracer("moalmanac-api/api")
			ctx, span := tracer.Start(r.Context(), "api.handle")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				reqLogger := logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, reqLogger)
			}

			if span.IsRecording() {
				span.SetAttributes(observability.RequestSpanAttributes(route, r.URL.Query())...)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
