// Package recorder runs recording sessions: it pulls frames from a capture
// device, classifies each aligned frame with a VAD engine, drives the
// endpointing state machine and, once the machine stops, serialises the
// buffered frames into a WAV file.
//
// A [Session] owns its device handle, frame buffer and state machine for its
// whole lifetime. Nothing is shared between sessions, and every error is
// converted into a [Result] variant at the session boundary: Run never panics
// on device failure and has no error return.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// ErrSessionDone is returned inside a [DeviceError] when Run is called on a
// session that has already run.
var ErrSessionDone = errors.New("recorder: session already ran")

// Config holds the per-session recording parameters. It is immutable for
// the lifetime of a session.
type Config struct {
	// Format is the capture format. Only mono is supported.
	Format audio.Format

	// SilenceTimeout is the trailing silence after speech that ends capture.
	SilenceTimeout time.Duration

	// OverallTimeout is the hard ceiling on session length.
	OverallTimeout time.Duration

	// Aggressiveness is passed to the VAD engine.
	Aggressiveness vad.Aggressiveness
}

// DefaultConfig returns 16 kHz mono, 2 s silence timeout, 15 s overall
// timeout and aggressiveness 1.
func DefaultConfig() Config {
	return Config{
		Format:         audio.Format{SampleRate: 16000, Channels: 1},
		SilenceTimeout: 2 * time.Second,
		OverallTimeout: 15 * time.Second,
		Aggressiveness: vad.AggressivenessLowBitrate,
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Format.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("recorder: silence timeout must be positive, got %v", c.SilenceTimeout))
	}
	if c.OverallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("recorder: overall timeout must be positive, got %v", c.OverallTimeout))
	}
	if !c.Aggressiveness.IsValid() {
		errs = append(errs, fmt.Errorf("recorder: vad aggressiveness %d out of range [0, 3]", c.Aggressiveness))
	}
	return errors.Join(errs...)
}

// Recorder creates sessions against one device and VAD engine.
type Recorder struct {
	device  audio.Device
	engine  vad.Engine
	clock   func() time.Time
	logger  *slog.Logger
	metrics *observe.Metrics
	newID   func() string
}

// Option is a functional option for configuring a Recorder.
type Option func(*Recorder)

// WithClock replaces time.Now as the source of elapsed time.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.clock = now }
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithIDGenerator replaces the UUID session ID generator.
func WithIDGenerator(fn func() string) Option {
	return func(r *Recorder) { r.newID = fn }
}

// New creates a Recorder. device and engine are required.
func New(device audio.Device, engine vad.Engine, opts ...Option) (*Recorder, error) {
	if device == nil {
		return nil, errors.New("recorder: device must not be nil")
	}
	if engine == nil {
		return nil, errors.New("recorder: vad engine must not be nil")
	}
	r := &Recorder{
		device: device,
		engine: engine,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r, nil
}

// NewSession validates cfg and returns a session ready to Run.
func (r *Recorder) NewSession(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		rec: r,
		cfg: cfg,
		id:  r.newID(),
	}, nil
}

// Record is shorthand for NewSession followed by Run. A config error is
// returned as a DeviceError so callers handle a single result type.
func (r *Recorder) Record(ctx context.Context, cfg Config) (string, Result) {
	s, err := r.NewSession(cfg)
	if err != nil {
		return "", DeviceError{Err: err}
	}
	return s.ID(), s.Run(ctx)
}
