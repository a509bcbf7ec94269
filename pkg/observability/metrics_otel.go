package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics carries the OpenTelemetry instruments for the credential flows
// and the permission cache. Request-level HTTP metrics come from otelhttp,
// so only domain signals live here.
type OTelMetrics struct {
	cacheHitsTotal   metric.Int64Counter
	cacheMissesTotal metric.Int64Counter

	exchangesTotal   metric.Int64Counter
	exchangeDuration metric.Float64Histogram
	refreshesTotal   metric.Int64Counter
	tokensIssued     metric.Int64Counter
}

// NewOTelMetrics registers the instruments against the global meter provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/SandboxServers/MeridianConsole-sub003")

	m := &OTelMetrics{}
	var err error

	m.cacheHitsTotal, err = meter.Int64Counter(
		"cache.hits.total",
		metric.WithDescription("Total number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache.hits.total counter: %w", err)
	}

	m.cacheMissesTotal, err = meter.Int64Counter(
		"cache.misses.total",
		metric.WithDescription("Total number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache.misses.total counter: %w", err)
	}

	m.exchangesTotal, err = meter.Int64Counter(
		"identity.exchanges.total",
		metric.WithDescription("Total number of token exchanges"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create identity.exchanges.total counter: %w", err)
	}

	m.exchangeDuration, err = meter.Float64Histogram(
		"identity.exchange.duration",
		metric.WithDescription("Token exchange duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create identity.exchange.duration histogram: %w", err)
	}

	m.refreshesTotal, err = meter.Int64Counter(
		"identity.refreshes.total",
		metric.WithDescription("Total number of refresh-token redemptions"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create identity.refreshes.total counter: %w", err)
	}

	m.tokensIssued, err = meter.Int64Counter(
		"identity.tokens.issued",
		metric.WithDescription("Total number of issued token pairs"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create identity.tokens.issued counter: %w", err)
	}

	return m, nil
}

// RecordCacheHit records a cache hit for the named cache.
func (m *OTelMetrics) RecordCacheHit(ctx context.Context, cacheType string) {
	m.cacheHitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.type", cacheType)))
}

// RecordCacheMiss records a cache miss for the named cache.
func (m *OTelMetrics) RecordCacheMiss(ctx context.Context, cacheType string) {
	m.cacheMissesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.type", cacheType)))
}

// PermissionCacheHit satisfies the permission cache's metrics hook.
func (m *OTelMetrics) PermissionCacheHit() {
	m.RecordCacheHit(context.Background(), "permissions")
}

// PermissionCacheMiss satisfies the permission cache's metrics hook.
func (m *OTelMetrics) PermissionCacheMiss() {
	m.RecordCacheMiss(context.Background(), "permissions")
}

// RecordExchange records a token exchange outcome.
func (m *OTelMetrics) RecordExchange(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("exchange.status", status))
	m.exchangesTotal.Add(ctx, 1, attrs)
	m.exchangeDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRefresh records a refresh-token redemption outcome.
func (m *OTelMetrics) RecordRefresh(ctx context.Context, status string) {
	m.refreshesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("refresh.status", status)))
}

// RecordTokenIssued records an issued token pair by originating flow.
func (m *OTelMetrics) RecordTokenIssued(ctx context.Context, flow string) {
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("token.flow", flow)))
}
