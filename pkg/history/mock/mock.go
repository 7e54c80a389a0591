// Package mock provides a test double for [history.Store].
//
// Store records every Write and returns the configured results. It is safe
// for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/history"
)

var _ history.Store = (*Store)(nil)

// Store is a configurable [history.Store].
type Store struct {
	mu sync.Mutex

	written []history.Entry
	queries []history.Query

	// WriteErr is returned by Write when non-nil. The entry is still recorded.
	WriteErr error

	// ListResult is returned by List. When nil, List returns the written
	// entries newest first.
	ListResult []history.Entry

	// ListErr is returned by List when non-nil.
	ListErr error
}

// Write implements [history.Store].
func (s *Store) Write(_ context.Context, e history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, e)
	return s.WriteErr
}

// List implements [history.Store].
func (s *Store) List(_ context.Context, q history.Query) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if s.ListResult != nil {
		return s.ListResult, nil
	}
	out := make([]history.Entry, 0, len(s.written))
	for i := len(s.written) - 1; i >= 0; i-- {
		out = append(out, s.written[i])
	}
	return out, nil
}

// Written returns a copy of every entry passed to Write.
func (s *Store) Written() []history.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Entry, len(s.written))
	copy(out, s.written)
	return out
}

// Queries returns a copy of every query passed to List.
func (s *Store) Queries() []history.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Query, len(s.queries))
	copy(out, s.queries)
	return out
}
