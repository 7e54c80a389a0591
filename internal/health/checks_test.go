package health

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/pkg/audio"
	vadmock "github.com/MrWong99/earshot/pkg/provider/vad/mock"
)

type fakeStatus []resilience.ProviderStatus

func (f fakeStatus) Status() []resilience.ProviderStatus { return f }

func TestProviderChecker(t *testing.T) {
	tests := []struct {
		name     string
		statuses fakeStatus
		wantErr  string
	}{
		{
			name:     "primary closed",
			statuses: fakeStatus{{Name: "groq", State: resilience.StateClosed}},
		},
		{
			name: "fallback half-open",
			statuses: fakeStatus{
				{Name: "groq", State: resilience.StateOpen},
				{Name: "whisper", State: resilience.StateHalfOpen},
			},
		},
		{
			name: "all open",
			statuses: fakeStatus{
				{Name: "groq", State: resilience.StateOpen},
				{Name: "whisper", State: resilience.StateOpen},
			},
			wantErr: "all circuit breakers open: groq, whisper",
		},
		{
			name:     "empty",
			statuses: fakeStatus{},
			wantErr:  "no providers configured",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := ProviderChecker("stt", tc.statuses)
			if c.Name != "stt" {
				t.Errorf("name = %q, want stt", c.Name)
			}
			err := c.Check(context.Background())
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want %q", err, tc.wantErr)
			}
		})
	}
}

func TestVADChecker(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 1}

	t.Run("ok", func(t *testing.T) {
		sess := &vadmock.Session{}
		engine := &vadmock.Engine{Session: sess}
		if err := VADChecker(engine, format).Check(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		calls := engine.Calls()
		if len(calls) != 1 || calls[0].Cfg.SampleRate != 16000 || calls[0].Cfg.FrameSizeMs != 10 {
			t.Errorf("NewSession calls = %+v", calls)
		}
		if sess.Processed() != 1 {
			t.Errorf("processed frames = %d, want 1", sess.Processed())
		}
	})

	t.Run("engine error", func(t *testing.T) {
		boom := errors.New("no engine")
		engine := &vadmock.Engine{NewSessionErr: boom}
		if err := VADChecker(engine, format).Check(context.Background()); !errors.Is(err, boom) {
			t.Errorf("error = %v, want %v", err, boom)
		}
	})
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	ok := PingChecker("history", pingFunc(func(context.Context) error { return nil }))
	if ok.Name != "history" {
		t.Errorf("Name = %q, want history", ok.Name)
	}
	if err := ok.Check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	boom := errors.New("connection refused")
	failing := PingChecker("history", pingFunc(func(context.Context) error { return boom }))
	if err := failing.Check(context.Background()); !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}
