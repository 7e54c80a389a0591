package recorder

import (
	"time"

	"github.com/MrWong99/earshot/internal/endpoint"
)

// Result is the terminal outcome of one recording session. It is exactly one
// of [Captured], [NoSpeechDetected], [EmptyCapture] or [DeviceError].
type Result interface {
	// Outcome is a short, stable label for logs, metrics and HTTP bodies.
	Outcome() string

	isResult()
}

// Outcome labels.
const (
	OutcomeCaptured    = "captured"
	OutcomeNoSpeech    = "no_speech"
	OutcomeEmpty       = "empty"
	OutcomeDeviceError = "device_error"
)

// Captured carries a finished utterance serialised as a WAV file.
type Captured struct {
	// Audio is a complete mono 16-bit PCM WAV file. It is immutable once
	// returned and may be shared freely.
	Audio []byte

	// FrameCount is the number of frames buffered, aligned or not.
	FrameCount int

	// Duration is the playback length of Audio.
	Duration time.Duration

	// Reason is why capture stopped.
	Reason endpoint.StopReason
}

// NoSpeechDetected means frames were captured but none was classified as
// speech. It is a normal outcome, not a failure.
type NoSpeechDetected struct {
	Reason     endpoint.StopReason
	FrameCount int
}

// EmptyCapture means the session ended before a single frame was buffered.
type EmptyCapture struct {
	Reason endpoint.StopReason
}

// DeviceError means the session aborted on a fatal error. Err matches
// audio.ErrDeviceOpen, audio.ErrDeviceRead or audio.ErrSerialization where
// applicable.
type DeviceError struct {
	Err error
}

func (Captured) Outcome() string         { return OutcomeCaptured }
func (NoSpeechDetected) Outcome() string { return OutcomeNoSpeech }
func (EmptyCapture) Outcome() string     { return OutcomeEmpty }
func (DeviceError) Outcome() string      { return OutcomeDeviceError }

func (Captured) isResult()         {}
func (NoSpeechDetected) isResult() {}
func (EmptyCapture) isResult()     {}
func (DeviceError) isResult()      {}

// Error implements error so a DeviceError can be returned or wrapped directly.
func (e DeviceError) Error() string {
	if e.Err == nil {
		return "recorder: device error"
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e DeviceError) Unwrap() error { return e.Err }

// ReasonOf returns the stop reason carried by r, or endpoint.StopNone for a
// DeviceError.
func ReasonOf(r Result) endpoint.StopReason {
	switch v := r.(type) {
	case Captured:
		return v.Reason
	case NoSpeechDetected:
		return v.Reason
	case EmptyCapture:
		return v.Reason
	default:
		return endpoint.StopNone
	}
}
