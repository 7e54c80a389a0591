// Package webrtc provides a vad.Engine backed by the WebRTC voice activity
// detector (github.com/maxhawkins/go-webrtcvad, CGO).
//
// WebRTC VAD classifies 10, 20 or 30 ms frames of 16-bit mono PCM at 8, 16,
// 32 or 48 kHz. Its four modes map one-to-one onto vad.Aggressiveness.
package webrtc

import (
	"fmt"
	"sync"

	"github.com/maxhawkins/go-webrtcvad"

	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// Engine creates WebRTC VAD sessions.
type Engine struct{}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// New returns a WebRTC VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession allocates a detector and sets its mode to cfg.Aggressiveness.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	det, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: create detector: %w", err)
	}
	if err := det.SetMode(int(cfg.Aggressiveness)); err != nil {
		return nil, fmt.Errorf("webrtc vad: set mode %d: %w", cfg.Aggressiveness, err)
	}
	return &session{
		det:        det,
		sampleRate: cfg.SampleRate,
		frameBytes: vad.FrameBytes(cfg.SampleRate, cfg.FrameSizeMs),
	}, nil
}

// session wraps one detector instance.
type session struct {
	mu         sync.Mutex
	det        *webrtcvad.VAD
	sampleRate int
	frameBytes int
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if len(frame) != s.frameBytes {
		return vad.Silence, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.det == nil {
		return vad.Silence, fmt.Errorf("webrtc vad: session closed")
	}
	speech, err := s.det.Process(s.sampleRate, frame)
	if err != nil {
		return vad.Silence, fmt.Errorf("webrtc vad: process: %w", err)
	}
	if speech {
		return vad.Speech, nil
	}
	return vad.Silence, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.det = nil
	return nil
}
