// Package postgres provides a PostgreSQL-backed [history.Store].
//
// Entries live in a single session_log table with a GIN full-text index on
// the transcript column. [Migrate] creates the schema and runs automatically
// from [NewStore].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Write(ctx, entry)
//	recent, _ := store.List(ctx, history.Query{Text: "lights", Limit: 10})
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/earshot/pkg/history"
)

var _ history.Store = (*Store)(nil)

// Store is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres history: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres history: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Write implements [history.Store].
func (s *Store) Write(ctx context.Context, e history.Entry) error {
	const q = `
		INSERT INTO session_log
		    (session_id, source, outcome, stop_reason, transcript, frames, duration_ns, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))`

	var ts *time.Time
	if !e.Timestamp.IsZero() {
		ts = &e.Timestamp
	}
	_, err := s.pool.Exec(ctx, q,
		e.SessionID,
		e.Source,
		e.Outcome,
		e.StopReason,
		e.Transcript,
		e.Frames,
		e.Duration.Nanoseconds(),
		ts,
	)
	if err != nil {
		return fmt.Errorf("postgres history: write: %w", err)
	}
	return nil
}

// List implements [history.Store]. Query.Text is passed to plainto_tsquery
// so no operator syntax is required.
func (s *Store) List(ctx context.Context, q history.Query) ([]history.Entry, error) {
	sql, args := buildList(q)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres history: list: %w", err)
	}
	return collectEntries(rows)
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// buildList assembles the SELECT for q with positional arguments.
func buildList(q history.Query) (string, []any) {
	var (
		args       []any
		conditions []string
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Text != "" {
		conditions = append(conditions, "to_tsvector('english', transcript) @@ plainto_tsquery('english', "+next(q.Text)+")")
	}
	if q.Outcome != "" {
		conditions = append(conditions, "outcome = "+next(q.Outcome))
	}
	if !q.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(q.After))
	}
	if !q.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(q.Before))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = history.DefaultLimit
	}

	var b strings.Builder
	b.WriteString("SELECT session_id, source, outcome, stop_reason, transcript, frames, duration_ns, timestamp\n")
	b.WriteString("FROM   session_log\n")
	if len(conditions) > 0 {
		b.WriteString("WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n")
	}
	b.WriteString("ORDER  BY timestamp DESC, id DESC\n")
	b.WriteString("LIMIT  " + next(limit))
	return b.String(), args
}

func collectEntries(rows pgx.Rows) ([]history.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Entry, error) {
		var (
			e          history.Entry
			durationNS int64
		)
		if err := row.Scan(
			&e.SessionID,
			&e.Source,
			&e.Outcome,
			&e.StopReason,
			&e.Transcript,
			&e.Frames,
			&durationNS,
			&e.Timestamp,
		); err != nil {
			return history.Entry{}, err
		}
		e.Duration = time.Duration(durationNS)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres history: scan rows: %w", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}
