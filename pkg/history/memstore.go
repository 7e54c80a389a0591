package history

import (
	"context"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is a bounded in-memory [Store]. When full, the oldest entry is
// evicted.
type MemStore struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	now      func() time.Time
}

// MemOption configures a MemStore.
type MemOption func(*MemStore)

// WithClock replaces time.Now for entries written without a timestamp.
func WithClock(now func() time.Time) MemOption {
	return func(s *MemStore) { s.now = now }
}

// NewMemStore returns a MemStore holding at most capacity entries. A
// non-positive capacity is treated as 1.
func NewMemStore(capacity int, opts ...MemOption) *MemStore {
	if capacity < 1 {
		capacity = 1
	}
	s := &MemStore{capacity: capacity, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Write implements [Store].
func (s *MemStore) Write(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if len(s.entries) == s.capacity {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, e)
	return nil
}

// List implements [Store].
func (s *MemStore) List(ctx context.Context, q Query) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	text := strings.ToLower(strings.TrimSpace(q.Text))

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Entry{}
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		switch {
		case q.Outcome != "" && e.Outcome != q.Outcome:
			continue
		case !q.After.IsZero() && !e.Timestamp.After(q.After):
			continue
		case !q.Before.IsZero() && !e.Timestamp.Before(q.Before):
			continue
		case text != "" && !strings.Contains(strings.ToLower(e.Transcript), text):
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
