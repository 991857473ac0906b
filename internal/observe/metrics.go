// Package observe provides application-wide observability primitives for
// Switchboard: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Switchboard metrics.
const meterName = "github.com/openclerk/switchboard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks end-to-end routing latency per turn.
	TurnDuration metric.Float64Histogram

	// TierDuration tracks per-tier latency. Use with attribute:
	//   attribute.String("tier", "1"|"2"|"3")
	TierDuration metric.Float64Histogram

	// --- Counters ---

	// TierHits counts turns resolved per tier. Use with attributes:
	//   attribute.String("tier", ...), attribute.String("reason", ...)
	TierHits metric.Int64Counter

	// LLMTokens counts Tier-3 tokens consumed, by template.
	LLMTokens metric.Int64Counter

	// LLMCost accumulates Tier-3 spend in USD, by template.
	LLMCost metric.Float64Counter

	// PatternsLearned counts patterns applied back to templates.
	PatternsLearned metric.Int64Counter

	// BudgetDenials counts turns denied an LLM call by the budget guard.
	BudgetDenials metric.Int64Counter

	// RoutingErrors counts failed turns by error code.
	RoutingErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of phone calls currently routing turns.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational routing latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("switchboard.turn.duration",
		metric.WithDescription("End-to-end routing latency per turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TierDuration, err = m.Float64Histogram("switchboard.tier.duration",
		metric.WithDescription("Routing latency per cascade tier."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.TierHits, err = m.Int64Counter("switchboard.tier.hits",
		metric.WithDescription("Turns resolved per cascade tier, by tier and selection reason."),
	); err != nil {
		return nil, err
	}
	if met.LLMTokens, err = m.Int64Counter("switchboard.llm.tokens",
		metric.WithDescription("Tier-3 tokens consumed, by template."),
	); err != nil {
		return nil, err
	}
	if met.LLMCost, err = m.Float64Counter("switchboard.llm.cost",
		metric.WithDescription("Tier-3 spend in USD, by template."),
		metric.WithUnit("{USD}"),
	); err != nil {
		return nil, err
	}
	if met.PatternsLearned, err = m.Int64Counter("switchboard.patterns.learned",
		metric.WithDescription("Learning patterns applied back to templates."),
	); err != nil {
		return nil, err
	}
	if met.BudgetDenials, err = m.Int64Counter("switchboard.budget.denials",
		metric.WithDescription("Turns denied an LLM call by the budget guard."),
	); err != nil {
		return nil, err
	}
	if met.RoutingErrors, err = m.Int64Counter("switchboard.routing.errors",
		metric.WithDescription("Failed turns by error code."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("switchboard.active_calls",
		metric.WithDescription("Phone calls currently routing turns."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("switchboard.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTierHit records one resolved turn with the standard attribute set.
func (m *Metrics) RecordTierHit(ctx context.Context, tier, reason string) {
	m.TierHits.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tier", tier),
			attribute.String("reason", reason),
		),
	)
}

// RecordLLMUsage records one Tier-3 call's tokens and spend for a template.
func (m *Metrics) RecordLLMUsage(ctx context.Context, templateID string, tokens int, costUSD float64) {
	attrs := metric.WithAttributes(attribute.String("template", templateID))
	m.LLMTokens.Add(ctx, int64(tokens), attrs)
	m.LLMCost.Add(ctx, costUSD, attrs)
}

// RecordRoutingError records one failed turn by error code.
func (m *Metrics) RecordRoutingError(ctx context.Context, code string) {
	m.RoutingErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("code", code)),
	)
}
