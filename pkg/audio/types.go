package audio

import (
	"fmt"
	"slices"
	"time"
)

// FrameDuration is the fixed duration of every capture frame. Voice activity
// classifiers only accept frames of exactly this length.
const FrameDuration = 10 * time.Millisecond

// BytesPerSample is the width of one signed 16-bit little-endian PCM sample.
const BytesPerSample = 2

// SupportedSampleRates lists the capture rates accepted by the pipeline. They
// match the rates the WebRTC voice activity detector can classify.
var SupportedSampleRates = []int{8000, 16000, 32000, 48000}

// Format describes the PCM layout of a capture stream. Capture is always mono
// 16-bit; Channels is carried so that containers can record it explicitly.
type Format struct {
	// SampleRate in Hz. Must be one of [SupportedSampleRates].
	SampleRate int

	// Channels is the channel count. Only 1 (mono) is supported.
	Channels int
}

// Validate reports whether f can be captured and classified.
func (f Format) Validate() error {
	if !slices.Contains(SupportedSampleRates, f.SampleRate) {
		return fmt.Errorf("audio: sample rate %d is not supported; valid values: %v", f.SampleRate, SupportedSampleRates)
	}
	if f.Channels != 1 {
		return fmt.Errorf("audio: %d channels requested; only mono capture is supported", f.Channels)
	}
	return nil
}

// SamplesPerFrame returns the number of samples in one [FrameDuration] frame.
func (f Format) SamplesPerFrame() int {
	return f.SampleRate * int(FrameDuration/time.Millisecond) / 1000
}

// FrameBytes returns the byte length of one aligned frame
// (SampleRate × 10 ms × 2 bytes).
func (f Format) FrameBytes() int {
	return f.SamplesPerFrame() * BytesPerSample * max(f.Channels, 1)
}

// Frame is one chunk of captured audio: raw signed 16-bit little-endian mono
// samples. Frames are produced by a [Source] in strictly increasing Seq order.
// Ownership of Data moves to the reader; sources must not reuse the slice.
type Frame struct {
	// Data holds the PCM samples. Usually [Format.FrameBytes] long, but a
	// device may deliver short or long reads.
	Data []byte

	// Seq is the zero-based position of the frame within its stream.
	Seq uint64

	// Timestamp is the capture offset from stream start, derived from the
	// number of samples delivered before this frame.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame at the given format.
func (fr Frame) Duration(f Format) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	samples := len(fr.Data) / BytesPerSample / max(f.Channels, 1)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
