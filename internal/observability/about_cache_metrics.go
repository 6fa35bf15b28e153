package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AboutCacheMetrics holds custom metrics for the service metadata cache.
// It satisfies about.Observer.
type AboutCacheMetrics struct {
	lookupCounter   metric.Int64Counter
	reloadCounter   metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
	now             func() time.Time
}

// InitAboutCacheMetrics initializes about cache metrics.
func InitAboutCacheMetrics(logger *slog.Logger) (*AboutCacheMetrics, error) {
	meter := otel.Meter(MeterName)

	lookupCounter, err := meter.Int64Counter(
		"about.cache.lookups.total",
		metric.WithDescription("Total number of about cache lookups"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create about cache lookup counter: %w", err)
	}

	reloadCounter, err := meter.Int64Counter(
		"about.cache.reload.total",
		metric.WithDescription("Total number of about record reload attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create about reload counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"about.cache.reload.errors.total",
		metric.WithDescription("Total number of failed about record reloads"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create about reload error counter: %w", err)
	}

	durationHist, err := meter.Float64Histogram(
		"about.cache.reload.duration",
		metric.WithDescription("Duration of about record reloads in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create about reload duration histogram: %w", err)
	}

	lastSuccessGauge, err := meter.Int64ObservableGauge(
		"about.cache.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful about record reload"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create about reload last success gauge: %w", err)
	}

	metrics := &AboutCacheMetrics{
		lookupCounter: lookupCounter,
		reloadCounter: reloadCounter,
		errorCounter:  errorCounter,
		durationHist:  durationHist,
		now:           time.Now,
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, observer metric.Observer) error {
			value := metrics.lastSuccessUnix.Load()
			if value > 0 {
				observer.ObserveInt64(lastSuccessGauge, value)
			}
			return nil
		},
		lastSuccessGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register about reload gauge callback: %w", err)
	}

	logger.Info("about cache metrics initialized")
	return metrics, nil
}

// ObserveAboutCache records whether a lookup was served from the cache.
func (m *AboutCacheMetrics) ObserveAboutCache(ctx context.Context, hit bool) {
	m.lookupCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("hit", hit)))
}

// ObserveAboutReload records one reload attempt.
func (m *AboutCacheMetrics) ObserveAboutReload(ctx context.Context, duration time.Duration, err error) {
	success := err == nil
	attrs := metric.WithAttributes(attribute.Bool("success", success))

	m.reloadCounter.Add(ctx, 1, attrs)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), attrs)

	if !success {
		m.errorCounter.Add(ctx, 1)
		return
	}

	m.lastSuccessUnix.Store(m.now().Unix())
}

// LastSuccess returns the time of the last successful reload, or the zero
// time when none has happened.
func (m *AboutCacheMetrics) LastSuccess() time.Time {
	value := m.lastSuccessUnix.Load()
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(value, 0)
}
