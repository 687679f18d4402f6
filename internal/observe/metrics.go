// Package observe provides application-wide observability primitives for
// VoxCanvas: OpenTelemetry metrics, tracing, and HTTP middleware that ties
// them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all VoxCanvas metrics.
const meterName = "github.com/voxcanvas/voxcanvas"

// Direction labels for relayed audio frames.
const (
	// DirectionInbound is caller → AI session.
	DirectionInbound = "inbound"

	// DirectionOutbound is AI session → caller.
	DirectionOutbound = "outbound"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// CallDuration tracks the wall-clock length of finished calls.
	CallDuration metric.Float64Histogram

	// FramesRelayed counts audio frames by direction. Use with
	// attribute.String("direction", DirectionInbound|DirectionOutbound).
	FramesRelayed metric.Int64Counter

	// DroppedFrames counts AI audio frames discarded because the telephony
	// stream identifier was not yet known.
	DroppedFrames metric.Int64Counter

	// TranscriptEntries counts transcript events accumulated across calls.
	TranscriptEntries metric.Int64Counter

	// Finalizes counts executed finalize sequences (one per call).
	Finalizes metric.Int64Counter

	// ReportRequests counts summarization attempts. Use with attributes:
	//   attribute.String("model", ...), attribute.String("status", ...)
	ReportRequests metric.Int64Counter

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// callDurationBuckets defines histogram boundaries (in seconds) sized for
// phone interviews.
var callDurationBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1200, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CallDuration, err = m.Float64Histogram("voxcanvas.call.duration",
		metric.WithDescription("Wall-clock duration of finished calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callDurationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesRelayed, err = m.Int64Counter("voxcanvas.frames.relayed",
		metric.WithDescription("Audio frames relayed by direction."),
	); err != nil {
		return nil, err
	}
	if met.DroppedFrames, err = m.Int64Counter("voxcanvas.frames.dropped",
		metric.WithDescription("AI audio frames dropped before stream start."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEntries, err = m.Int64Counter("voxcanvas.transcript.entries",
		metric.WithDescription("Transcript entries accumulated across calls."),
	); err != nil {
		return nil, err
	}
	if met.Finalizes, err = m.Int64Counter("voxcanvas.call.finalizes",
		metric.WithDescription("Executed finalize sequences."),
	); err != nil {
		return nil, err
	}
	if met.ReportRequests, err = m.Int64Counter("voxcanvas.report.requests",
		metric.WithDescription("Summarization attempts by model and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCalls, err = m.Int64UpDownCounter("voxcanvas.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxcanvas.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordFrame records one relayed audio frame in the given direction.
func (m *Metrics) RecordFrame(ctx context.Context, direction string) {
	m.FramesRelayed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)),
	)
}

// RecordReportRequest records one summarization attempt outcome.
func (m *Metrics) RecordReportRequest(ctx context.Context, model, status string) {
	m.ReportRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("status", status),
		),
	)
}
