// Package history defines the session log: one [Entry] per finished
// recording session or uploaded clip, with its outcome and transcript.
//
// The interface is public so that alternative backends can be plugged in.
// [MemStore] keeps a bounded in-process log; package postgres persists
// entries and adds full-text search.
//
// Every implementation must be safe for concurrent use.
package history

import (
	"context"
	"time"
)

// Entry sources.
const (
	SourceListen = "listen"
	SourceUpload = "upload"
)

// Entry is one logged session.
type Entry struct {
	// SessionID identifies the recording session. Uploads get a fresh ID.
	SessionID string `json:"session_id"`

	// Source is SourceListen or SourceUpload.
	Source string `json:"source"`

	// Outcome is the recorder outcome label, or "transcribed" / "error" for
	// uploads.
	Outcome string `json:"outcome"`

	// StopReason is the endpointing stop reason. Empty for uploads.
	StopReason string `json:"stop_reason,omitempty"`

	// Transcript is the corrected transcript. Empty when nothing was heard.
	Transcript string `json:"transcript,omitempty"`

	// Frames is the number of buffered frames.
	Frames int `json:"frames"`

	// Duration is the session's wall-clock length.
	Duration time.Duration `json:"duration_ns"`

	// Timestamp is when the entry was written.
	Timestamp time.Time `json:"timestamp"`
}

// Query filters a [Store.List] call. All non-zero fields are applied as AND
// conditions.
type Query struct {
	// Text restricts results to entries whose transcript matches. MemStore
	// does a case-insensitive substring match; postgres does full-text search.
	Text string

	// Outcome restricts results to one outcome label.
	Outcome string

	// After filters entries recorded after this instant (exclusive).
	After time.Time

	// Before filters entries recorded before this instant (exclusive).
	Before time.Time

	// Limit caps the number of results. 0 applies [DefaultLimit].
	Limit int
}

// DefaultLimit is the result cap applied when Query.Limit is 0.
const DefaultLimit = 50

// Store persists session entries.
type Store interface {
	// Write appends e. A zero Timestamp is set to the current time.
	Write(ctx context.Context, e Entry) error

	// List returns matching entries, newest first.
	List(ctx context.Context, q Query) ([]Entry, error)
}
