// Package wavfile provides an audio.Device that replays a WAV recording as if
// it were a live microphone. Frames are cut at the requested 10 ms size; a
// short trailing remainder is delivered as a final, unaligned frame. The
// source returns io.EOF once the recording is exhausted.
//
// It is used by the one-shot CLI mode and for reproducing endpointing
// decisions offline from a captured file.
package wavfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
)

// Option is a functional option for configuring a Device.
type Option func(*Device)

// WithRealtime paces ReadFrame so that frames are delivered at the rate a
// live device would produce them. Off by default.
func WithRealtime(on bool) Option {
	return func(d *Device) {
		d.realtime = on
	}
}

// Device replays a single WAV file. Each Open call starts from the
// beginning of the file.
type Device struct {
	path     string
	realtime bool
}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)

// New returns a Device for the WAV file at path. The file is read on Open.
func New(path string, opts ...Option) (*Device, error) {
	if path == "" {
		return nil, fmt.Errorf("wavfile: path must not be empty")
	}
	d := &Device{path: path}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Open reads and decodes the file. A mono recording at another sample rate
// is resampled to f; other channel counts are rejected.
func (d *Device) Open(ctx context.Context, f audio.Format) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", audio.ErrDeviceOpen, err)
	}
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %w", audio.ErrDeviceOpen, d.path, err)
	}
	pcm, info, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %q: %w", audio.ErrDeviceOpen, d.path, err)
	}
	if info.Format.Channels != f.Channels {
		return nil, fmt.Errorf("%w: %q has %d channels, capture wants %d",
			audio.ErrDeviceOpen, d.path, info.Format.Channels, f.Channels)
	}
	pcm = audio.Resample(pcm, info.Format.SampleRate, f.SampleRate)
	return &source{
		pcm:       pcm,
		frameSize: f.FrameBytes(),
		format:    f,
		realtime:  d.realtime,
		started:   time.Now(),
	}, nil
}

// source is the open replay stream.
type source struct {
	pcm       []byte
	frameSize int
	format    audio.Format
	realtime  bool
	started   time.Time

	off    int
	seq    uint64
	closed bool
}

func (s *source) ReadFrame() (audio.Frame, error) {
	if s.closed {
		return audio.Frame{}, fmt.Errorf("%w: source closed", audio.ErrDeviceRead)
	}
	if s.off >= len(s.pcm) {
		return audio.Frame{}, io.EOF
	}

	end := min(s.off+s.frameSize, len(s.pcm))
	data := make([]byte, end-s.off)
	copy(data, s.pcm[s.off:end])

	ts := time.Duration(s.off/audio.BytesPerSample) * time.Second / time.Duration(s.format.SampleRate)
	fr := audio.Frame{Data: data, Seq: s.seq, Timestamp: ts}
	s.off = end
	s.seq++

	if s.realtime {
		due := s.started.Add(ts + fr.Duration(s.format))
		if wait := time.Until(due); wait > 0 {
			time.Sleep(wait)
		}
	}
	return fr, nil
}

func (s *source) Close() error {
	s.closed = true
	s.pcm = nil
	return nil
}
