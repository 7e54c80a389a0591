package observe

import (
	"context"
	"testing"
	"time"

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

// collect gathers all metric data from the reader.
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

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"earshot.session.duration", m.SessionDuration},
		{"earshot.stt.duration", m.STTDuration},
		{"earshot.tts.duration", m.TTSDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "groq", "stt", "ok")
	m.RecordProviderRequest(ctx, "groq", "stt", "ok")
	m.RecordProviderRequest(ctx, "groq", "stt", "error")
	m.RecordProviderRequest(ctx, "whisper", "stt", "ok")

	sum, ok := findMetric(collect(t, reader), "earshot.provider.requests").Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	got := map[string]int64{}
	for _, dp := range sum.DataPoints {
		p, _ := dp.Attributes.Value("provider")
		st, _ := dp.Attributes.Value("status")
		got[p.AsString()+"/"+st.AsString()] = dp.Value
	}
	want := map[string]int64{"groq/ok": 2, "groq/error": 1, "whisper/ok": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
}

func TestActiveSessions(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	sum, ok := findMetric(collect(t, reader), "earshot.active_sessions").Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 {
		t.Fatal("unexpected active_sessions data")
	}
	if v := sum.DataPoints[0].Value; v != 1 {
		t.Errorf("active sessions = %d, want 1", v)
	}
}

func TestRecordSession(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSession(ctx, "captured", "silence_timeout", 3*time.Second)
	m.RecordSession(ctx, "captured", "silence_timeout", 4*time.Second)
	m.RecordSession(ctx, "no_speech", "overall_timeout", 15*time.Second)

	rm := collect(t, reader)
	met := findMetric(rm, "earshot.sessions")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) != 2 {
		t.Fatalf("data points = %d, want 2", len(sum.DataPoints))
	}
	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		reason, _ := dp.Attributes.Value(attribute.Key("reason"))
		switch outcome.AsString() {
		case "captured":
			if dp.Value != 2 || reason.AsString() != "silence_timeout" {
				t.Errorf("captured: value=%d reason=%q", dp.Value, reason.AsString())
			}
		case "no_speech":
			if dp.Value != 1 || reason.AsString() != "overall_timeout" {
				t.Errorf("no_speech: value=%d reason=%q", dp.Value, reason.AsString())
			}
		default:
			t.Errorf("unexpected outcome %q", outcome.AsString())
		}
	}

	dur := findMetric(rm, "earshot.session.duration")
	if dur == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("duration metric is not a histogram")
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("duration samples = %d, want 3", total)
	}
}

func TestRecordFrames_SkipsZero(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFrames(ctx, "captured", 150)
	m.RecordFrames(ctx, "overflow", 0)

	rm := collect(t, reader)
	met := findMetric(rm, "earshot.frames")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(sum.DataPoints))
	}
	if sum.DataPoints[0].Value != 150 {
		t.Errorf("counter value = %d, want 150", sum.DataPoints[0].Value)
	}
}

func TestProviderErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "elevenlabs", "tts")

	rm := collect(t, reader)
	met := findMetric(rm, "earshot.provider.errors")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("metric is not a sum")
	}
	if len(sum.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("counter value = %d, want 1", sum.DataPoints[0].Value)
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
