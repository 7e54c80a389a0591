// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// whisperSampleRate is the only rate whisper.cpp models accept.
const whisperSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Transcriber.
var _ stt.Transcriber = (*NativeProvider)(nil)

// NativeProvider implements stt.Transcriber using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once at
// startup and shared across calls; each call gets its own context.
type NativeProvider struct {
	model    whisperlib.Model
	defaults stt.Options
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeDefaults sets the options applied when a call leaves fields
// empty. Defaults to stt.DefaultOptions().
func WithNativeDefaults(o stt.Options) NativeOption {
	return func(p *NativeProvider) { p.defaults = o }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("whisper: modelPath must not be empty: %w", stt.ErrNotConfigured)
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		defaults: stt.DefaultOptions(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe decodes wav, resamples it to 16 kHz if needed and runs
// inference in-process. Cancellation is only observed before inference
// starts; whisper.cpp itself cannot be interrupted.
func (p *NativeProvider) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (string, error) {
	if len(wav) == 0 {
		return "", stt.ErrEmptyAudio
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	opts = opts.WithDefaults(p.defaults)

	pcm, info, err := audio.DecodeWAV(wav)
	if err != nil {
		return "", fmt.Errorf("whisper: decode wav: %w", err)
	}
	samples := pcmToFloat32Mono(pcm, info.Format.Channels)
	samples = resampleLinear(samples, info.Format.SampleRate, whisperSampleRate)
	if len(samples) == 0 {
		return "", nil
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if opts.Language != "" {
		if err := wctx.SetLanguage(opts.Language); err != nil {
			return "", fmt.Errorf("whisper: set language %q: %w", opts.Language, err)
		}
	}
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}
	wctx.SetTemperature(float32(opts.Temperature))

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
