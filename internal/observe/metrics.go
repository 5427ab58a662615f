// Package observe holds the telemetry of voicecanvas: OpenTelemetry
// instruments for tool calls, artifact updates, transcript messages and
// scroll effects, tracing, context-scoped slog loggers and HTTP middleware.
//
// [Setup] installs the SDK with a Prometheus exporter served on /metrics.
// Tests build [Metrics] with [NewMetrics] on a noop or manual-reader
// provider instead of touching the globals.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voicecanvas metrics.
const meterName = "github.com/MrWong99/voicecanvas"

// Status values for the "status" attribute of [Metrics.ToolCalls].
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusProtocol = "protocol_error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ── Tool dispatch ───────────────────────────────────────────────────────

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool handler latency.
	ToolDuration metric.Float64Histogram

	// ── Session state ───────────────────────────────────────────────────────

	// ArtifactUpdates counts artifact writes. Use with attribute:
	//   attribute.String("kind", "svg"|"placeholder")
	ArtifactUpdates metric.Int64Counter

	// TranscriptMessages counts transcript entries. Use with attribute:
	//   attribute.String("role", ...)
	TranscriptMessages metric.Int64Counter

	// ScrollEffects counts fired scroll timers. Use with attribute:
	//   attribute.String("outcome", "scrolled"|"skipped")
	ScrollEffects metric.Int64Counter

	// ActiveSessions tracks the number of live realtime sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ── Errors ──────────────────────────────────────────────────────────────

	// ProviderErrors counts realtime provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ── HTTP middleware ─────────────────────────────────────────────────────

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Tool
// handlers are local and fast, so the low end is finer than for HTTP.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolCalls, err = m.Int64Counter("voicecanvas.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("voicecanvas.tool.duration",
		metric.WithDescription("Latency of tool handler execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ArtifactUpdates, err = m.Int64Counter("voicecanvas.artifact.updates",
		metric.WithDescription("Total artifact writes by kind."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptMessages, err = m.Int64Counter("voicecanvas.transcript.messages",
		metric.WithDescription("Total transcript messages by role."),
	); err != nil {
		return nil, err
	}
	if met.ScrollEffects, err = m.Int64Counter("voicecanvas.scroll.effects",
		metric.WithDescription("Total fired transcript scroll effects by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voicecanvas.active_sessions",
		metric.WithDescription("Number of live realtime sessions."),
	); err != nil {
		return nil, err
	}

	if met.ProviderErrors, err = m.Int64Counter("voicecanvas.provider.errors",
		metric.WithDescription("Total realtime provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voicecanvas.http.request.duration",
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

// RecordToolCall records one tool invocation with its outcome and latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordArtifactUpdate records an artifact write of the given kind.
func (m *Metrics) RecordArtifactUpdate(ctx context.Context, kind string) {
	m.ArtifactUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordTranscriptMessage records a transcript entry for role.
func (m *Metrics) RecordTranscriptMessage(ctx context.Context, role string) {
	m.TranscriptMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordScrollEffect records a fired scroll timer and whether it scrolled.
func (m *Metrics) RecordScrollEffect(ctx context.Context, scrolled bool) {
	outcome := "skipped"
	if scrolled {
		outcome = "scrolled"
	}
	m.ScrollEffects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
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
