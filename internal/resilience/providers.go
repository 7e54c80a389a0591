package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across multiple STT backends. Each backend has its own circuit breaker.
// Empty audio is rejected without touching any backend.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend. cfg.Kind defaults to "stt".
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, stt.ErrEmptyAudio) }
	}
	return &TranscriberFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT backend.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Status reports the breaker state of every backend.
func (f *TranscriberFallback) Status() []ProviderStatus { return f.group.Status() }

// Transcribe runs the recording through the first healthy backend.
func (f *TranscriberFallback) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (string, error) {
	if len(wav) == 0 {
		return "", stt.ErrEmptyAudio
	}
	return ExecuteWithResult(ctx, f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, wav, opts)
	})
}

// SynthesizerFallback implements [tts.Synthesizer] with automatic failover
// across multiple TTS backends. Each backend has its own circuit breaker.
type SynthesizerFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*SynthesizerFallback)(nil)

// NewSynthesizerFallback creates a [SynthesizerFallback] with primary as the
// preferred backend. cfg.Kind defaults to "tts".
func NewSynthesizerFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *SynthesizerFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(err error) bool { return errors.Is(err, tts.ErrEmptyText) }
	}
	return &SynthesizerFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS backend.
func (f *SynthesizerFallback) AddFallback(name string, s tts.Synthesizer) {
	f.group.AddFallback(name, s)
}

// Status reports the breaker state of every backend.
func (f *SynthesizerFallback) Status() []ProviderStatus { return f.group.Status() }

// Synthesize renders text with the first healthy backend. A voice ID is
// provider specific, so fallbacks receive a zero Voice and use their own
// default.
func (f *SynthesizerFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	first := true
	return ExecuteWithResult(ctx, f.group, func(s tts.Synthesizer) (tts.Audio, error) {
		v := voice
		if !first {
			v = tts.Voice{}
		}
		first = false
		return s.Synthesize(ctx, text, v)
	})
}
