// Package portaudio provides a microphone audio.Device backed by the
// PortAudio C library (github.com/gordonklaus/portaudio, CGO).
//
// Each Open call initialises PortAudio, opens the default input stream with
// one 10 ms frame per buffer and starts it. Close releases the stream and
// terminates PortAudio in reverse order; the same release path runs when Open
// fails half-way, so a failed open never leaks a stream or an initialised
// library.
package portaudio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/earshot/pkg/audio"
)

// Device opens the system's default input device.
type Device struct{}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)

// New returns a Device for the default input.
func New() *Device {
	return &Device{}
}

// Open initialises PortAudio and starts a mono 16-bit capture stream.
func (d *Device) Open(ctx context.Context, f audio.Format) (_ audio.Source, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDeviceOpen, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDeviceOpen, err)
	}

	s := &source{
		format: f,
		buf:    make([]int16, f.SamplesPerFrame()),
	}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize: %w", audio.ErrDeviceOpen, err)
	}
	s.initialized = true

	stream, err := pa.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), len(s.buf), s.buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open default stream: %w", audio.ErrDeviceOpen, err)
	}
	s.stream = stream

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("%w: start stream: %w", audio.ErrDeviceOpen, err)
	}
	s.started = true

	slog.Debug("portaudio: capture started",
		"sample_rate", f.SampleRate,
		"frames_per_buffer", len(s.buf),
	)
	return s, nil
}

// source is a running PortAudio capture stream.
type source struct {
	format audio.Format
	buf    []int16

	stream      *pa.Stream
	initialized bool
	started     bool

	seq     uint64
	samples int64

	once sync.Once
}

// ReadFrame blocks until PortAudio has filled one buffer. An input overflow
// is reported as audio.ErrOverflow together with the samples PortAudio still
// delivered.
func (s *source) ReadFrame() (audio.Frame, error) {
	if s.stream == nil {
		return audio.Frame{}, fmt.Errorf("%w: stream closed", audio.ErrDeviceRead)
	}
	readErr := s.stream.Read()
	if readErr != nil && !errors.Is(readErr, pa.InputOverflowed) {
		return audio.Frame{}, fmt.Errorf("%w: %w", audio.ErrDeviceRead, readErr)
	}

	data := make([]byte, len(s.buf)*audio.BytesPerSample)
	for i, v := range s.buf {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}
	fr := audio.Frame{
		Data:      data,
		Seq:       s.seq,
		Timestamp: time.Duration(s.samples) * time.Second / time.Duration(s.format.SampleRate),
	}
	s.seq++
	s.samples += int64(len(s.buf))

	if readErr != nil {
		return fr, fmt.Errorf("%w: %w", audio.ErrOverflow, readErr)
	}
	return fr, nil
}

// Close stops the stream and terminates PortAudio. Safe to call repeatedly.
func (s *source) Close() error {
	var err error
	s.once.Do(func() {
		err = s.release()
	})
	return err
}

// release undoes whatever Open managed to acquire, newest first.
func (s *source) release() error {
	var errs []error
	if s.started {
		if err := s.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: stop stream: %w", err))
		}
		s.started = false
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close stream: %w", err))
		}
		s.stream = nil
	}
	if s.initialized {
		if err := pa.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: terminate: %w", err))
		}
		s.initialized = false
	}
	return errors.Join(errs...)
}
