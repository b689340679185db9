package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the value of the int64 counter data point whose
// attribute set contains key=val. An empty key matches the first data point.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, val string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, met.Data)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == val {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, val)
	return 0
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name string) uint64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not recorded", name)
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric %q is %T, want Histogram[float64]", name, met.Data)
	}
	if len(hist.DataPoints) == 0 {
		t.Fatalf("metric %q has no data points", name)
	}
	return hist.DataPoints[0].Count
}

func TestNewMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestDurationHistograms(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := map[string]metric.Float64Histogram{
		"hostline.extraction.duration":     m.ExtractionDuration,
		"hostline.peer.connect.duration":   m.PeerConnectDuration,
		"hostline.reservation.op.duration": m.ReservationOpDuration,
	}
	for _, h := range histograms {
		h.Record(ctx, 0.123)
		h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)
	for name := range histograms {
		if got := histogramCount(t, rm, name); got != 2 {
			t.Errorf("%s sample count = %d, want 2", name, got)
		}
	}
}

func TestRecordExtraction(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordExtraction(ctx, "llm", "ok", 0.2)
	m.RecordExtraction(ctx, "llm", "ok", 0.3)
	m.RecordExtraction(ctx, "rules", "error", 0.001)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "hostline.extraction.requests", "backend", "llm"); got != 2 {
		t.Errorf("llm extraction count = %d, want 2", got)
	}
}

func TestRecordReservationOp(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordReservationOp(ctx, "create", "ok")
	m.RecordReservationOp(ctx, "create", "ok")
	m.RecordReservationOp(ctx, "cancel", "error")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "hostline.reservation.ops", "op", "create"); got != 2 {
		t.Errorf("create op count = %d, want 2", got)
	}
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "user")
	m.RecordTurn(ctx, "user")
	m.RecordTurn(ctx, "agent")

	rm := collect(t, reader)
	if got := counterValue(t, rm, "hostline.transcript.turns", "speaker", "user"); got != 2 {
		t.Errorf("user turn count = %d, want 2", got)
	}
}

func TestPeerErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.PeerErrors.Add(context.Background(), 1)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "hostline.peer.errors", "", ""); got != 1 {
		t.Errorf("peer error count = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 2)
	m.ActiveSessions.Add(ctx, -1)
	m.LiveBridges.Add(ctx, 1)

	rm := collect(t, reader)
	if got := counterValue(t, rm, "hostline.active_sessions", "", ""); got != 1 {
		t.Errorf("active_sessions = %d, want 1", got)
	}
	if got := counterValue(t, rm, "hostline.live_bridges", "", ""); got != 1 {
		t.Errorf("live_bridges = %d, want 1", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)

	m.HTTPRequestDuration.Record(context.Background(), 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	if got := histogramCount(t, rm, "hostline.http.request.duration"); got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
