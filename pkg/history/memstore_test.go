package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/earshot/pkg/history"
)

func TestMemStore_EvictsOldest(t *testing.T) {
	t.Parallel()

	s := history.NewMemStore(3)
	ctx := context.Background()
	for i := range 5 {
		if err := s.Write(ctx, history.Entry{SessionID: fmt.Sprintf("s%d", i)}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}

	got, err := s.List(ctx, history.Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"s4", "s3", "s2"}
	for i, id := range want {
		if got[i].SessionID != id {
			t.Errorf("entry %d = %q, want %q (newest first)", i, got[i].SessionID, id)
		}
	}
}

func TestMemStore_Filters(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := history.NewMemStore(10)
	ctx := context.Background()
	entries := []history.Entry{
		{SessionID: "a", Outcome: "captured", Transcript: "Turn on the lights", Timestamp: base},
		{SessionID: "b", Outcome: "no_speech", Timestamp: base.Add(time.Minute)},
		{SessionID: "c", Outcome: "captured", Transcript: "lights off", Timestamp: base.Add(2 * time.Minute)},
		{SessionID: "d", Outcome: "captured", Transcript: "play music", Timestamp: base.Add(3 * time.Minute)},
	}
	for _, e := range entries {
		if err := s.Write(ctx, e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	tests := []struct {
		name string
		q    history.Query
		want []string
	}{
		{name: "all", q: history.Query{}, want: []string{"d", "c", "b", "a"}},
		{name: "outcome", q: history.Query{Outcome: "no_speech"}, want: []string{"b"}},
		{name: "text is case insensitive", q: history.Query{Text: "LIGHTS"}, want: []string{"c", "a"}},
		{name: "after is exclusive", q: history.Query{After: base.Add(time.Minute)}, want: []string{"d", "c"}},
		{name: "before is exclusive", q: history.Query{Before: base.Add(time.Minute)}, want: []string{"a"}},
		{name: "limit", q: history.Query{Limit: 2}, want: []string{"d", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := s.List(ctx, tt.q)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List returned %d entries, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].SessionID != id {
					t.Errorf("entry %d = %q, want %q", i, got[i].SessionID, id)
				}
			}
		})
	}
}

func TestMemStore_StampsTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := history.NewMemStore(1, history.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	if err := s.Write(ctx, history.Entry{SessionID: "x"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.List(ctx, history.Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !got[0].Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, now)
	}
}

func TestMemStore_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := history.NewMemStore(1).List(ctx, history.Query{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
