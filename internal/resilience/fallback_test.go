package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/earshot/internal/observe"
)

func testConfig() FallbackConfig {
	return FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour},
		Logger:         discard,
	}
}

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", testConfig())
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "primary" {
		t.Fatalf("called = %q, want primary", called)
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", testConfig())
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		if v == "primary" {
			return errTest
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", testConfig())
	fg.AddFallback("secondary", "secondary")

	err := fg.Execute(context.Background(), func(string) error { return errTest })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want the last provider error wrapped", err)
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenProvider(t *testing.T) {
	cfg := testConfig()
	cfg.CircuitBreaker.MaxFailures = 2
	fg := NewFallbackGroup("primary", "primary", cfg)
	fg.AddFallback("secondary", "secondary")

	for range 2 {
		_ = fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}

	status := fg.Status()
	if len(status) != 2 || status[0].State != StateOpen || status[1].State != StateClosed {
		t.Fatalf("unexpected status %+v", status)
	}

	var calls []string
	err := fg.Execute(context.Background(), func(v string) error {
		calls = append(calls, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0] != "secondary" {
		t.Fatalf("calls = %v, want [secondary] (primary circuit should be open)", calls)
	}
}

func TestFallbackGroup_PermanentErrorStops(t *testing.T) {
	errBadInput := errors.New("bad input")
	cfg := testConfig()
	cfg.Permanent = func(err error) bool { return errors.Is(err, errBadInput) }
	fg := NewFallbackGroup("primary", "primary", cfg)
	fg.AddFallback("secondary", "secondary")

	var calls int
	err := fg.Execute(context.Background(), func(string) error {
		calls++
		return errBadInput
	})
	if !errors.Is(err, errBadInput) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want the permanent error unwrapped by ErrAllFailed", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestFallbackGroup_CancelledContextStops(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", testConfig())
	fg.AddFallback("secondary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := fg.Execute(ctx, func(string) error {
		calls++
		cancel()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", testConfig())
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (string, error) {
		if v == 10 {
			return "", errTest
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestFallbackGroup_RecordsProviderMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg := testConfig()
	cfg.Kind = "stt"
	cfg.Metrics = met
	fg := NewFallbackGroup("groq", "groq", cfg)
	fg.AddFallback("whisper", "whisper")

	_ = fg.Execute(context.Background(), func(v string) error {
		if v == "groq" {
			return errTest
		}
		return nil
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				p, _ := dp.Attributes.Value("provider")
				key := m.Name + "/" + p.AsString()
				if s, ok := dp.Attributes.Value("status"); ok {
					key += "/" + s.AsString()
				}
				counts[key] += dp.Value
			}
		}
	}
	want := map[string]int64{
		"earshot.provider.requests/groq/error": 1,
		"earshot.provider.requests/whisper/ok": 1,
		"earshot.provider.errors/groq":         1,
	}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("%s = %d, want %d (all: %v)", k, counts[k], v, counts)
		}
	}
}
