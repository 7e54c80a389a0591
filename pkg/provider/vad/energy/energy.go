// Package energy provides a pure-Go vad.Engine that classifies frames by
// their RMS amplitude.
//
// It needs no CGO and no model, which makes it the fallback when the WebRTC
// detector is unavailable and the engine of choice for replaying recorded
// clips in tests. Higher aggressiveness raises the RMS threshold, so fewer
// frames count as speech.
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// DefaultThresholds maps each aggressiveness level to the minimum RMS
// (in 16-bit sample units) a frame needs to count as speech.
var DefaultThresholds = [4]float64{200, 400, 800, 1600}

// Engine creates RMS-gated VAD sessions.
type Engine struct {
	thresholds [4]float64
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithThresholds overrides the per-aggressiveness RMS thresholds.
func WithThresholds(t [4]float64) Option {
	return func(e *Engine) { e.thresholds = t }
}

// New returns an energy engine using DefaultThresholds unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{thresholds: DefaultThresholds}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession validates cfg and returns a stateless classifier.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &session{
		threshold:  e.thresholds[cfg.Aggressiveness],
		frameBytes: vad.FrameBytes(cfg.SampleRate, cfg.FrameSizeMs),
	}, nil
}

type session struct {
	threshold  float64
	frameBytes int
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if len(frame) != s.frameBytes {
		return vad.Silence, fmt.Errorf("%w: got %d bytes, want %d", vad.ErrFrameSize, len(frame), s.frameBytes)
	}
	rms := RMS(frame)
	if rms >= s.threshold {
		return vad.VADEvent{Type: vad.VADSpeech, Probability: probability(rms, s.threshold)}, nil
	}
	return vad.VADEvent{Type: vad.VADSilence, Probability: probability(rms, s.threshold)}, nil
}

func (s *session) Close() error { return nil }

// RMS returns the root-mean-square amplitude of little-endian 16-bit PCM.
// A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// probability squashes rms relative to threshold into [0, 1], reaching 0.5
// exactly at the threshold.
func probability(rms, threshold float64) float64 {
	if threshold <= 0 {
		return 1
	}
	r := rms / threshold
	return r / (1 + r)
}
