// Package observe provides application-wide observability primitives for
// animus: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all animus metrics.
const meterName = "github.com/solmae/animus"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per model boundary ---

	// CognizeDuration tracks persona inference latency.
	CognizeDuration metric.Float64Histogram

	// SynthesizeDuration tracks text-to-speech synthesis latency.
	SynthesizeDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text transcription latency.
	TranscribeDuration metric.Float64Histogram

	// TickDuration tracks how long one world-clock tick takes to process
	// across all scheduled agents.
	TickDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Fallbacks counts canned-frame responses served in place of live
	// cognition. Use with attribute:
	//   attribute.String("reason", ...)
	Fallbacks metric.Int64Counter

	// Interactions counts player-to-agent exchanges. Use with attribute:
	//   attribute.String("agent_id", ...)
	Interactions metric.Int64Counter

	// BudgetOverruns counts ticks whose per-tier work exceeded its budget.
	// Use with attribute: attribute.String("tier", ...)
	BudgetOverruns metric.Int64Counter

	// CacheHits and CacheMisses count read-cache outcomes on the hot paths.
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// AgentsByTier tracks the population per scheduling tier. Use with
	// attribute: attribute.String("tier", ...)
	AgentsByTier metric.Int64UpDownCounter

	// ActiveConversations tracks the number of live group conversations.
	ActiveConversations metric.Int64UpDownCounter

	// WriteQueueDepth tracks the number of persistence writes awaiting flush.
	WriteQueueDepth metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("surface", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for model-call and tick latencies.
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
	if met.CognizeDuration, err = m.Float64Histogram("animus.cognize.duration",
		metric.WithDescription("Latency of persona inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesizeDuration, err = m.Float64Histogram("animus.synthesize.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = m.Float64Histogram("animus.transcribe.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TickDuration, err = m.Float64Histogram("animus.tick.duration",
		metric.WithDescription("Wall time to process one world-clock tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("animus.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("animus.cognize.fallbacks",
		metric.WithDescription("Total canned-frame responses by reason."),
	); err != nil {
		return nil, err
	}
	if met.Interactions, err = m.Int64Counter("animus.interactions",
		metric.WithDescription("Total player-to-agent exchanges by agent ID."),
	); err != nil {
		return nil, err
	}
	if met.BudgetOverruns, err = m.Int64Counter("animus.tick.budget_overruns",
		metric.WithDescription("Ticks whose per-tier work exceeded its budget."),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("animus.cache.hits",
		metric.WithDescription("Read-cache hits."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("animus.cache.misses",
		metric.WithDescription("Read-cache misses."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("animus.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.AgentsByTier, err = m.Int64UpDownCounter("animus.agents",
		metric.WithDescription("Agent population by scheduling tier."),
	); err != nil {
		return nil, err
	}
	if met.ActiveConversations, err = m.Int64UpDownCounter("animus.active_conversations",
		metric.WithDescription("Number of live group conversations."),
	); err != nil {
		return nil, err
	}
	if met.WriteQueueDepth, err = m.Int64UpDownCounter("animus.write_queue.depth",
		metric.WithDescription("Persistence writes awaiting flush."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("animus.http.request.duration",
		metric.WithDescription("HTTP request latency by method and API surface."),
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordFallback is a convenience method that records a canned-frame response
// counter increment.
func (m *Metrics) RecordFallback(ctx context.Context, reason string) {
	m.Fallbacks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordInteraction is a convenience method that records one player-to-agent
// exchange.
func (m *Metrics) RecordInteraction(ctx context.Context, agentID string) {
	m.Interactions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("agent_id", agentID)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
