// Package observe provides application-wide observability primitives for
// Dino English: OpenTelemetry metrics, tracing, trace-aware structured logging,
// and HTTP middleware for the side-server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus exporter so they can be scraped via /metrics.
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/dinoenglish"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Narration ---

	// NarrationOutcomes counts Speak results. Use with attribute:
	//   attribute.String("outcome", "played"|"fallback"|"suppressed")
	NarrationOutcomes metric.Int64Counter

	// TTSDuration tracks remote speech-generation latency.
	TTSDuration metric.Float64Histogram

	// ProviderRequests counts speech provider calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts speech provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// DecodeErrors counts payloads the PCM decoder rejected.
	DecodeErrors metric.Int64Counter

	// ActivePlaybacks tracks voices currently playing on any audio session.
	ActivePlaybacks metric.Int64UpDownCounter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes: attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Progression ---

	// PersistenceWrites counts progress store writes. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	PersistenceWrites metric.Int64Counter

	// ScoreAwarded sums points awarded. Use with attribute:
	//   attribute.String("level", ...)
	ScoreAwarded metric.Int64Counter

	// LevelUnlocks counts newly unlocked levels.
	LevelUnlocks metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) around the
// 5 s narration timeout.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.NarrationOutcomes, err = m.Int64Counter("dinoenglish.narration.outcomes",
		metric.WithDescription("Narration requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("dinoenglish.tts.duration",
		metric.WithDescription("Latency of remote speech generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("dinoenglish.provider.requests",
		metric.WithDescription("Total speech provider requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("dinoenglish.provider.errors",
		metric.WithDescription("Total speech provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("dinoenglish.decode.errors",
		metric.WithDescription("PCM payloads rejected by the decoder."),
	); err != nil {
		return nil, err
	}
	if met.ActivePlaybacks, err = m.Int64UpDownCounter("dinoenglish.active_playbacks",
		metric.WithDescription("Number of voices currently playing."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("dinoenglish.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}
	if met.PersistenceWrites, err = m.Int64Counter("dinoenglish.persistence.writes",
		metric.WithDescription("Progress store writes by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.ScoreAwarded, err = m.Int64Counter("dinoenglish.score.awarded",
		metric.WithDescription("Points awarded by level."),
	); err != nil {
		return nil, err
	}
	if met.LevelUnlocks, err = m.Int64Counter("dinoenglish.level.unlocks",
		metric.WithDescription("Levels newly unlocked."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("dinoenglish.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordNarration records one Speak outcome.
func (m *Metrics) RecordNarration(ctx context.Context, outcome string) {
	m.NarrationOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordPlayback adjusts the active playback gauge. It has the signature of
// audio.WithPlaybackHook.
func (m *Metrics) RecordPlayback(delta int64) {
	m.ActivePlaybacks.Add(context.Background(), delta)
}

// RecordBreakerTransition records a circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}

// RecordPersistence records one storage write attempt.
func (m *Metrics) RecordPersistence(ctx context.Context, backend, status string) {
	m.PersistenceWrites.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("status", status),
		),
	)
}

// RecordScore records points awarded on level.
func (m *Metrics) RecordScore(ctx context.Context, level, points int) {
	m.ScoreAwarded.Add(ctx, int64(points),
		metric.WithAttributes(attribute.String("level", strconv.Itoa(level))),
	)
}
