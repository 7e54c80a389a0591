// Package mock provides a test double for the tts.Synthesizer interface.
//
// Use Synthesizer to return a controlled clip to consumers and to verify that
// the correct text and Voice are passed to the TTS backend.
//
// Example:
//
//	s := &mock.Synthesizer{Audio: tts.Audio{Data: []byte("mp3"), MediaType: tts.MediaTypeMPEG}}
//	clip, _ := s.Synthesize(ctx, "hello", tts.Voice{})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the Voice passed to Synthesize.
	Voice tts.Voice
}

// Synthesizer is a mock implementation of tts.Synthesizer and tts.VoiceLister.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is returned by Synthesize when Err is nil.
	Audio tts.Audio

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// Voices is returned by ListVoices.
	Voices []tts.Voice

	// ListVoicesErr, if non-nil, is returned from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

var (
	_ tts.Synthesizer = (*Synthesizer)(nil)
	_ tts.VoiceLister = (*Synthesizer)(nil)
)

// Synthesize records the call and returns Audio or Err.
func (s *Synthesizer) Synthesize(_ context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, SynthesizeCall{Text: text, Voice: voice})
	if s.Err != nil {
		return tts.Audio{}, s.Err
	}
	return s.Audio, nil
}

// ListVoices returns Voices or ListVoicesErr.
func (s *Synthesizer) ListVoices(_ context.Context) ([]tts.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ListVoicesErr != nil {
		return nil, s.ListVoicesErr
	}
	return s.Voices, nil
}

// CallCount returns the number of Synthesize calls so far.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
