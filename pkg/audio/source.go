// Package audio defines the capture-side abstractions of earshot: the PCM
// [Frame] and [Format] types, the [Device]/[Source] pair that delivers frames
// from an input device, and the WAV container used to hand a finished
// recording to transcription.
//
// The two capture abstractions are:
//
//   - [Device] opens an input for a given [Format] and returns a [Source].
//   - [Source] is an open capture stream. It yields frames one at a time and
//     must be closed exactly once.
//
// Implementations live in sub-packages (audio/portaudio for a microphone,
// audio/wavfile for replaying recordings). The interfaces are narrow so that
// the recorder can be tested against scripted doubles from audio/mock.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrDeviceOpen wraps every failure to open a capture device. Nothing has
	// been captured when it is returned.
	ErrDeviceOpen = errors.New("audio: device open failed")

	// ErrOverflow reports that the device's input buffer overran between two
	// reads. It is not fatal: the accompanying frame carries whatever data the
	// device still had (possibly none) and capture may continue.
	ErrOverflow = errors.New("audio: input overflowed")

	// ErrDeviceRead wraps fatal read failures. A source that returned it
	// cannot produce further frames.
	ErrDeviceRead = errors.New("audio: device read failed")
)

// Source is an open capture stream.
//
// ReadFrame blocks until one frame is available. It returns:
//
//   - a frame and nil on success;
//   - a (possibly empty) frame and an error matching [ErrOverflow] when the
//     input overran;
//   - io.EOF when a finite source is exhausted;
//   - any other error when the device failed. Such errors are fatal.
//
// A Source is owned by a single goroutine and is not safe for concurrent use.
type Source interface {
	ReadFrame() (Frame, error)

	// Close stops capture and releases every resource held by the source.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Device opens capture sources. Implementations must release any partially
// acquired resources before returning an error from Open, and should wrap
// such errors with [ErrDeviceOpen].
type Device interface {
	// Open starts a capture stream delivering frames of [Format.FrameBytes]
	// bytes. ctx bounds the open call only, not the lifetime of the source.
	Open(ctx context.Context, f Format) (Source, error)
}
