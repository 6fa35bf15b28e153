package observability

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// filterKeys returns the distinct query parameter names in sorted order.
func filterKeys(query url.Values) []string {
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func filterValueCount(query url.Values) int {
	n := 0
	for _, values := range query {
		n += len(values)
	}
	return n
}

// RequestSpanAttributes builds canonical span attributes for an API request.
// Filter values are never recorded, only their names and count.
func RequestSpanAttributes(route string, query url.Values) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)

	if route != "" {
		attrs = append(attrs, attribute.String("api.route", route))
	}
	if len(query) > 0 {
		attrs = append(attrs,
			attribute.StringSlice("api.filter.keys", filterKeys(query)),
			attribute.Int("api.filter.value_count", filterValueCount(query)),
		)
	}

	return attrs
}

// RequestLogFields builds canonical structured log fields for an API request.
func RequestLogFields(ctx context.Context, route string, query url.Values) []any {
	fields := make([]any, 0, 3)

	if route != "" {
		fields = append(fields, slog.String("route", route))
	}
	if len(query) > 0 {
		fields = append(fields, slog.String("filters", strings.Join(filterKeys(query), ",")))
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}

	return fields
}
