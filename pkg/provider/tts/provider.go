// Package tts defines the Synthesizer interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server) and turns one piece of text into one encoded audio clip. The
// clip carries its media type so HTTP handlers can serve it without knowing
// which backend produced it.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

var (
	// ErrEmptyText is returned when Synthesize is called with blank text.
	ErrEmptyText = errors.New("tts: text must not be empty")

	// ErrNotConfigured is returned by constructors missing a required
	// credential or endpoint.
	ErrNotConfigured = errors.New("tts: provider not configured")
)

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize renders text with the given voice. A zero Voice selects the
	// provider's default voice. Returns ErrEmptyText for blank input.
	Synthesize(ctx context.Context, text string, voice Voice) (Audio, error)
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	// ListVoices returns all voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls.
	ListVoices(ctx context.Context) ([]Voice, error)
}
