package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/earshot/pkg/history"
	"github.com/MrWong99/earshot/pkg/history/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if EARSHOT_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("EARSHOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EARSHOT_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore drops the session_log table and returns a freshly migrated
// store closed on cleanup.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS session_log"); err != nil {
		pool.Close()
		t.Fatalf("drop table: %v", err)
	}
	pool.Close()

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_WriteAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	entries := []history.Entry{
		{SessionID: "a", Source: history.SourceListen, Outcome: "captured", StopReason: "silence_after_speech", Transcript: "turn on the lights", Frames: 120, Duration: 1200 * time.Millisecond, Timestamp: base},
		{SessionID: "b", Source: history.SourceListen, Outcome: "no_speech", StopReason: "overall_timeout", Frames: 1500, Timestamp: base.Add(time.Second)},
		{SessionID: "c", Source: history.SourceUpload, Outcome: "transcribed", Transcript: "play some music", Timestamp: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := store.Write(ctx, e); err != nil {
			t.Fatalf("Write(%s): %v", e.SessionID, err)
		}
	}

	all, err := store.List(ctx, history.Query{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].SessionID != "c" || all[2].SessionID != "a" {
		t.Fatalf("List order = %+v, want c, b, a", all)
	}
	if all[2].Duration != 1200*time.Millisecond || all[2].Frames != 120 {
		t.Errorf("round-trip lost fields: %+v", all[2])
	}

	lights, err := store.List(ctx, history.Query{Text: "light"})
	if err != nil {
		t.Fatalf("List(text): %v", err)
	}
	if len(lights) != 1 || lights[0].SessionID != "a" {
		t.Errorf("full-text search = %+v, want only a", lights)
	}

	noSpeech, err := store.List(ctx, history.Query{Outcome: "no_speech"})
	if err != nil {
		t.Fatalf("List(outcome): %v", err)
	}
	if len(noSpeech) != 1 || noSpeech[0].SessionID != "b" {
		t.Errorf("outcome filter = %+v, want only b", noSpeech)
	}
}

func TestStore_DefaultTimestamp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Write(ctx, history.Entry{SessionID: "x", Source: history.SourceListen, Outcome: "empty"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := store.List(ctx, history.Query{Limit: 1})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Timestamp.IsZero() {
		t.Errorf("expected database-assigned timestamp, got %+v", got)
	}
}
