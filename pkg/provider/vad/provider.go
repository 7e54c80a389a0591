// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (WebRTC VAD, an energy
// gate, …) and surfaces it as a per-stream session. A session is configured
// once with a sample rate and an aggressiveness level and then classifies one
// fixed-length frame per call as speech or non-speech.
//
// VAD is synchronous: ProcessFrame returns immediately with a
// detection result, making it suitable for the capture loop that drives
// endpointing. Classification is deterministic per call: the same bytes with
// the same configuration always yield the same verdict.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"fmt"
)

// FrameSizeMs is the only frame duration the pipeline classifies.
const FrameSizeMs = 10

// ErrFrameSize is returned by ProcessFrame when the frame length does not
// match the configured sample rate and frame duration. Callers should check
// alignment with [FrameBytes] before classifying instead of relying on it.
var ErrFrameSize = errors.New("vad: frame size mismatch")

// Aggressiveness trades false-positive speech detection against sensitivity
// to quiet speech. 0 is the least aggressive (most frames count as speech),
// 3 the most aggressive.
type Aggressiveness int

const (
	AggressivenessQuality Aggressiveness = iota
	AggressivenessLowBitrate
	AggressivenessAggressive
	AggressivenessVeryAggressive
)

// IsValid reports whether a is within 0–3.
func (a Aggressiveness) IsValid() bool {
	return a >= AggressivenessQuality && a <= AggressivenessVeryAggressive
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Valid: 8000, 16000, 32000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// ProcessFrame returns [ErrFrameSize] if a frame does not match it.
	FrameSizeMs int

	// Aggressiveness selects the detector's operating point.
	Aggressiveness Aggressiveness
}

// Validate reports configuration errors common to every engine.
func (c Config) Validate() error {
	switch c.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return fmt.Errorf("vad: unsupported sample rate %d", c.SampleRate)
	}
	if c.FrameSizeMs != FrameSizeMs {
		return fmt.Errorf("vad: unsupported frame size %d ms (only %d ms)", c.FrameSizeMs, FrameSizeMs)
	}
	if !c.Aggressiveness.IsValid() {
		return fmt.Errorf("vad: aggressiveness %d out of range [0, 3]", c.Aggressiveness)
	}
	return nil
}

// FrameBytes returns the byte length of a 16-bit mono frame of frameMs
// milliseconds at sampleRate.
func FrameBytes(sampleRate, frameMs int) int {
	return sampleRate * frameMs / 1000 * 2
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine.
type SessionHandle interface {
	// ProcessFrame classifies a single audio frame. The frame must be raw
	// little-endian 16-bit PCM at the SampleRate and FrameSizeMs configured
	// when the session was created. Returns [ErrFrameSize] for misaligned
	// frames, or another error if the engine fails internally.
	//
	// This method is called synchronously in the capture loop; it must not
	// block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Close releases all resources associated with the session. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid or the engine cannot
	// allocate resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
