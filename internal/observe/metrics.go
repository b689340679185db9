// Package observe provides application-wide observability primitives for
// Hostline: OpenTelemetry metrics, distributed tracing, structured logging,
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

// meterName is the instrumentation scope name used for all Hostline metrics.
const meterName = "github.com/hostline-ai/hostline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ExtractionDuration tracks the latency of one extraction pass over the
	// transcript.
	ExtractionDuration metric.Float64Histogram

	// PeerConnectDuration tracks how long the model peer dial takes,
	// including retries.
	PeerConnectDuration metric.Float64Histogram

	// ReservationOpDuration tracks reservation store operation latency.
	ReservationOpDuration metric.Float64Histogram

	// --- Counters ---

	// ExtractionRequests counts extraction passes. Use with attributes:
	//   attribute.String("backend", ...), attribute.String("status", ...)
	ExtractionRequests metric.Int64Counter

	// ReservationOps counts reservation operations. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	ReservationOps metric.Int64Counter

	// SMSMessages counts outbound SMS sends. Use with attribute:
	//   attribute.String("status", ...)
	SMSMessages metric.Int64Counter

	// TranscriptTurns counts merged transcript turns. Use with attribute:
	//   attribute.String("speaker", ...)
	TranscriptTurns metric.Int64Counter

	// StateTransitions counts conversation state transitions. Use with
	// attribute: attribute.String("to", ...)
	StateTransitions metric.Int64Counter

	// --- Error counters ---

	// PeerErrors counts model peer failures (dial, mid-stream).
	PeerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live call sessions.
	ActiveSessions metric.Int64UpDownCounter

	// LiveBridges tracks how many sessions are bridged to a real model peer
	// (as opposed to running in simulation mode).
	LiveBridges metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for conversational-pipeline latencies.
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
	if met.ExtractionDuration, err = m.Float64Histogram("hostline.extraction.duration",
		metric.WithDescription("Latency of one extraction pass over the transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PeerConnectDuration, err = m.Float64Histogram("hostline.peer.connect.duration",
		metric.WithDescription("Model peer dial latency including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ReservationOpDuration, err = m.Float64Histogram("hostline.reservation.op.duration",
		metric.WithDescription("Reservation store operation latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ExtractionRequests, err = m.Int64Counter("hostline.extraction.requests",
		metric.WithDescription("Total extraction passes by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.ReservationOps, err = m.Int64Counter("hostline.reservation.ops",
		metric.WithDescription("Total reservation operations by op and status."),
	); err != nil {
		return nil, err
	}
	if met.SMSMessages, err = m.Int64Counter("hostline.sms.messages",
		metric.WithDescription("Total outbound SMS sends by status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptTurns, err = m.Int64Counter("hostline.transcript.turns",
		metric.WithDescription("Total merged transcript turns by speaker."),
	); err != nil {
		return nil, err
	}
	if met.StateTransitions, err = m.Int64Counter("hostline.state.transitions",
		metric.WithDescription("Total conversation state transitions by target state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PeerErrors, err = m.Int64Counter("hostline.peer.errors",
		metric.WithDescription("Total model peer failures."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("hostline.active_sessions",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}
	if met.LiveBridges, err = m.Int64UpDownCounter("hostline.live_bridges",
		metric.WithDescription("Number of sessions bridged to a real model peer."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hostline.http.request.duration",
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

// RecordExtraction records one extraction pass with the standard attribute
// set.
func (m *Metrics) RecordExtraction(ctx context.Context, backend, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	)
	m.ExtractionRequests.Add(ctx, 1, attrs)
	m.ExtractionDuration.Record(ctx, seconds, attrs)
}

// RecordReservationOp records one reservation operation with the standard
// attribute set.
func (m *Metrics) RecordReservationOp(ctx context.Context, op, status string) {
	m.ReservationOps.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}

// RecordSMS records one outbound SMS attempt.
func (m *Metrics) RecordSMS(ctx context.Context, status string) {
	m.SMSMessages.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordTurn records one merged transcript turn.
func (m *Metrics) RecordTurn(ctx context.Context, speaker string) {
	m.TranscriptTurns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker", speaker)),
	)
}

// RecordStateTransition records one conversation state transition.
func (m *Metrics) RecordStateTransition(ctx context.Context, to string) {
	m.StateTransitions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("to", to)),
	)
}
