// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber wraps a batch transcription service (an OpenAI-compatible
// /audio/transcriptions endpoint such as Groq, a local whisper.cpp server,
// Deepgram, …) behind one call: a complete WAV recording goes in, plain text
// comes out. Recording is always fully buffered before it is handed over, so
// no provider needs a streaming session.
//
// Ownership: the WAV bytes belong to the caller. A Transcriber must not retain
// or mutate them after Transcribe returns.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

var (
	// ErrEmptyAudio is returned when Transcribe is called without audio.
	ErrEmptyAudio = errors.New("stt: empty audio")

	// ErrNotConfigured is returned when a provider is missing credentials or
	// an endpoint.
	ErrNotConfigured = errors.New("stt: provider not configured")
)

// Transcriber is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call Transcribe simultaneously.
type Transcriber interface {
	// Transcribe converts a complete WAV recording (mono, 16-bit PCM) to text.
	// opts carries language and determinism hints; providers ignore hints
	// they cannot express. An empty transcript with a nil error means the
	// provider heard nothing it could transcribe.
	Transcribe(ctx context.Context, wav []byte, opts Options) (string, error)
}
