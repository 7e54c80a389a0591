// Package mock provides test doubles for the audio package interfaces.
//
// Use Device to verify that sources are opened with the expected Format and
// to inject open failures. Use Source to script the exact sequence of frames
// and errors a capture stream delivers, and to assert that Close was called.
//
// Example:
//
//	src := &mock.Source{Steps: []mock.Step{
//	    {Data: frame},
//	    {Err: audio.ErrOverflow},
//	    {Err: errors.New("unplugged")},
//	}}
//	dev := &mock.Device{Source: src}
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/earshot/pkg/audio"
)

// OpenCall records a single invocation of Device.Open.
type OpenCall struct {
	// Format is the format passed to Open.
	Format audio.Format
}

// Device is a mock implementation of audio.Device.
type Device struct {
	mu sync.Mutex

	// Source is returned by Open. If nil, Open returns an empty Source that
	// reports io.EOF immediately.
	Source *Source

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCalls records every call to Open in order.
	OpenCalls []OpenCall
}

// Open records the call and returns Source, OpenErr.
func (d *Device) Open(_ context.Context, f audio.Format) (audio.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, OpenCall{Format: f})
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.Source == nil {
		d.Source = &Source{}
	}
	return d.Source, nil
}

// OpenCount returns the number of Open calls. Thread-safe.
func (d *Device) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)

// Step is one scripted ReadFrame result.
type Step struct {
	// Data is the frame payload. A nil Data with a nil Err yields an empty
	// frame.
	Data []byte

	// Err is returned alongside the frame.
	Err error
}

// Source is a mock implementation of audio.Source that replays Steps in
// order. When the script is exhausted it either repeats Tail forever (if
// set) or returns io.EOF.
type Source struct {
	mu sync.Mutex

	// Steps is the scripted sequence of reads.
	Steps []Step

	// Tail, if non-nil, is returned for every read after Steps run out.
	Tail *Step

	// OnRead, if set, is invoked before every read with the zero-based read
	// index. Tests use it to advance fake clocks or cancel contexts.
	OnRead func(i int)

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// ReadCount is the number of ReadFrame calls.
	ReadCount int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// ReadFrame returns the next scripted step.
func (s *Source) ReadFrame() (audio.Frame, error) {
	s.mu.Lock()
	i := s.ReadCount
	s.ReadCount++
	onRead := s.OnRead
	var st Step
	switch {
	case i < len(s.Steps):
		st = s.Steps[i]
	case s.Tail != nil:
		st = *s.Tail
	default:
		s.mu.Unlock()
		if onRead != nil {
			onRead(i)
		}
		return audio.Frame{}, io.EOF
	}
	s.mu.Unlock()

	if onRead != nil {
		onRead(i)
	}
	var data []byte
	if st.Data != nil {
		data = make([]byte, len(st.Data))
		copy(data, st.Data)
	}
	return audio.Frame{Data: data, Seq: uint64(i)}, st.Err
}

// Close records the call and returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// Closes returns the number of Close calls. Thread-safe.
func (s *Source) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Reads returns the number of ReadFrame calls. Thread-safe.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ReadCount
}

// Ensure Source implements audio.Source at compile time.
var _ audio.Source = (*Source)(nil)

// Repeat returns n steps that all carry a copy of data.
func Repeat(data []byte, n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = Step{Data: data}
	}
	return steps
}
