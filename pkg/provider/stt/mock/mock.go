// Package mock provides test doubles for the stt package interfaces.
//
// Use Transcriber to return a canned transcript or error and to inspect the
// audio and options each call received.
//
// Example:
//
//	tr := &mock.Transcriber{Text: "turn on the lights"}
//	text, _ := tr.Transcribe(ctx, wav, stt.DefaultOptions())
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the audio passed to Transcribe.
	WAV []byte
	// Opts is the Options passed to Transcribe.
	Opts stt.Options
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Text is returned by every successful call.
	Text string

	// Err, if non-nil, is returned by every call.
	Err error

	// Fn, if set, replaces Text and Err.
	Fn func(ctx context.Context, wav []byte, opts stt.Options) (string, error)

	// Calls records every call to Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (t *Transcriber) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (string, error) {
	t.mu.Lock()
	cp := make([]byte, len(wav))
	copy(cp, wav)
	t.Calls = append(t.Calls, TranscribeCall{WAV: cp, Opts: opts})
	fn, text, err := t.Fn, t.Text, t.Err
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, wav, opts)
	}
	return text, err
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
