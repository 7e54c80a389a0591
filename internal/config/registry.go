package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	stt   map[string]func(ProviderEntry) (stt.Transcriber, error)
	tts   map[string]func(ProviderEntry) (tts.Synthesizer, error)
	vad   map[string]func(ProviderEntry) (vad.Engine, error)
	audio map[string]func(ProviderEntry) (audio.Device, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:   make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		tts:   make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
		vad:   make(map[string]func(ProviderEntry) (vad.Engine, error)),
		audio: make(map[string]func(ProviderEntry) (audio.Device, error)),
	}
}

// RegisterSTT registers a transcriber factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterTTS registers a synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterAudio registers a capture device factory under name.
func (r *Registry) RegisterAudio(name string, factory func(ProviderEntry) (audio.Device, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// CreateSTT instantiates the transcriber named by entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	return create(r, r.stt, "stt", entry)
}

// CreateTTS instantiates the synthesizer named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	return create(r, r.tts, "tts", entry)
}

// CreateVAD instantiates the VAD engine named by entry.Name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	return create(r, r.vad, "vad", entry)
}

// CreateAudio instantiates the capture device named by entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Device, error) {
	return create(r, r.audio, "audio", entry)
}

func create[T any](r *Registry, m map[string]func(ProviderEntry) (T, error), kind string, entry ProviderEntry) (T, error) {
	r.mu.RLock()
	factory, ok := m[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s provider %q: %w", kind, entry.Name, ErrProviderNotRegistered)
	}
	return factory(entry)
}
