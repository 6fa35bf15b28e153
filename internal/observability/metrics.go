package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName scopes every instrument the service creates.
const MeterName = "moalmanac-api"

// APIMetrics holds custom metrics for API requests and the queries behind them
type APIMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	resultsCount    metric.Int64Histogram
	queryDuration   metric.Float64Histogram
	queryErrors     metric.Int64Counter
	batchCacheHits  metric.Int64Counter
	batchCacheMiss  metric.Int64Counter
}

// InitAPIMetrics initializes API-specific metrics
func InitAPIMetrics() (*APIMetrics, error) {
	meter := otel.Meter(MeterName)

	requestDuration, err := meter.Float64Histogram(
		"api.request.duration",
		metric.WithDescription("Duration of API requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"api.requests.total",
		metric.WithDescription("Total number of API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"api.errors.total",
		metric.WithDescription("Total number of API requests answered with an error status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"api.requests.active",
		metric.WithDescription("Number of active API requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	resultsCount, err := meter.Int64Histogram(
		"api.results.count",
		metric.WithDescription("Number of records returned by list routes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create results count histogram: %w", err)
	}

	queryDuration, err := meter.Float64Histogram(
		"db.query.duration",
		metric.WithDescription("Duration of knowledgebase queries in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query duration histogram: %w", err)
	}

	queryErrors, err := meter.Int64Counter(
		"db.query.errors.total",
		metric.WithDescription("Total number of failed knowledgebase queries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query error counter: %w", err)
	}

	batchCacheHits, err := meter.Int64Counter(
		"api.batch.cache_hits",
		metric.WithDescription("Number of relation lookups served from the request cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache hits counter: %w", err)
	}

	batchCacheMiss, err := meter.Int64Counter(
		"api.batch.cache_misses",
		metric.WithDescription("Number of relation lookups that needed a query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch cache misses counter: %w", err)
	}

	return &APIMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		resultsCount:    resultsCount,
		queryDuration:   queryDuration,
		queryErrors:     queryErrors,
		batchCacheHits:  batchCacheHits,
		batchCacheMiss:  batchCacheMiss,
	}, nil
}

// RecordRequest records one request against its route pattern and status code.
func (m *APIMetrics) RecordRequest(ctx context.Context, route string, status int, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("route", route),
		attribute.Int("status_code", status),
	}

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if status >= 400 {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordResultsCount records the number of records a route returned
func (m *APIMetrics) RecordResultsCount(ctx context.Context, route string, count int64) {
	m.resultsCount.Record(ctx, count, metric.WithAttributes(
		attribute.String("route", route),
	))
}

// RecordCacheStats records the request cache outcome of one relationship load.
func (m *APIMetrics) RecordCacheStats(ctx context.Context, entity string, hits, misses int64) {
	attrs := metric.WithAttributes(attribute.String("entity", entity))
	if hits > 0 {
		m.batchCacheHits.Add(ctx, hits, attrs)
	}
	if misses > 0 {
		m.batchCacheMiss.Add(ctx, misses, attrs)
	}
}

// ObserveQuery records one resolver query. It satisfies resolver.QueryObserver.
func (m *APIMetrics) ObserveQuery(ctx context.Context, entity string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("entity", entity),
		attribute.Bool("success", err == nil),
	}
	m.queryDuration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(attrs...))
	if err != nil {
		m.queryErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
	}
}

// IncrementActiveRequests increments the active requests counter
func (m *APIMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter
func (m *APIMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes all custom metrics and returns the APIMetrics instance
func InitMetrics(logger *slog.Logger) (*APIMetrics, error) {
	metrics, err := InitAPIMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API metrics: %w", err)
	}

	logger.Info("custom API metrics initialized")
	return metrics, nil
}

type apiMetricsContextKey struct{}

// ContextWithAPIMetrics stores API metrics in the provided context.
func ContextWithAPIMetrics(ctx context.Context, metrics *APIMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, apiMetricsContextKey{}, metrics)
}

// APIMetricsFromContext retrieves API metrics from the context.
func APIMetricsFromContext(ctx context.Context) *APIMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(apiMetricsContextKey{}).(*APIMetrics)
	return metrics
}
