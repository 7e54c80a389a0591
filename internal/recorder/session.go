package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/earshot/internal/endpoint"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// Frame kinds reported to observe.Metrics.RecordFrames.
const (
	frameKindCaptured   = "captured"
	frameKindOverflow   = "overflow"
	frameKindMisaligned = "misaligned"
	frameKindDropped    = "dropped"
)

// maxPreallocFrames caps the initial buffer at 30 s of audio. Longer
// sessions grow it by append.
const maxPreallocFrames = 3000

// Stats summarises what a session read from its source.
type Stats struct {
	// Buffered is the number of frames kept in the buffer.
	Buffered int

	// Classified is the number of aligned frames passed to the VAD.
	Classified int

	// Misaligned is the number of buffered frames whose length did not match
	// the format's frame size. They were never classified.
	Misaligned int

	// Overflows is the number of reads that reported audio.ErrOverflow.
	Overflows int

	// Dropped is the number of overflow reads that carried no data.
	Dropped int

	// Elapsed is the session wall-clock time as measured by the clock.
	Elapsed time.Duration
}

// Session is a single recording attempt. It is not safe for concurrent use
// and may only be run once.
type Session struct {
	rec   *Recorder
	cfg   Config
	id    string
	ran   atomic.Bool
	stats Stats
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session's recording parameters.
func (s *Session) Config() Config { return s.cfg }

// Stats returns the capture statistics. Valid after Run returns.
func (s *Session) Stats() Stats { return s.stats }

// Run captures one utterance. It blocks until the endpointing machine stops,
// the overall timeout elapses, ctx is cancelled or the device fails. The
// source is closed exactly once on every path that opened it.
//
// Cancellation is checked once per frame, next to the timeout check, and is
// reported like any other stop: the buffered frames are still serialised if
// speech was heard.
func (s *Session) Run(ctx context.Context) Result {
	if !s.ran.CompareAndSwap(false, true) {
		return DeviceError{Err: ErrSessionDone}
	}

	ctx, span := observe.StartSpan(ctx, "recorder.session",
		trace.WithAttributes(
			attribute.String("earshot.session_id", s.id),
			attribute.Int("earshot.sample_rate", s.cfg.Format.SampleRate),
			attribute.Int("earshot.vad_aggressiveness", int(s.cfg.Aggressiveness)),
		),
	)
	defer span.End()

	log := observe.Enrich(ctx, s.rec.logger).With("session_id", s.id)
	met := s.rec.metrics
	start := s.rec.clock()

	met.ActiveSessions.Add(ctx, 1)
	defer met.ActiveSessions.Add(ctx, -1)

	log.Info("recording session started",
		"sample_rate", s.cfg.Format.SampleRate,
		"silence_timeout", s.cfg.SilenceTimeout,
		"overall_timeout", s.cfg.OverallTimeout,
		"vad_aggressiveness", int(s.cfg.Aggressiveness),
	)

	res := s.capture(ctx, log, start)
	s.stats.Elapsed = s.rec.clock().Sub(start)

	reason := ReasonOf(res)
	met.RecordSession(ctx, res.Outcome(), reason.String(), s.stats.Elapsed)
	met.RecordFrames(ctx, frameKindCaptured, int64(s.stats.Buffered))
	met.RecordFrames(ctx, frameKindOverflow, int64(s.stats.Overflows))
	met.RecordFrames(ctx, frameKindMisaligned, int64(s.stats.Misaligned))
	met.RecordFrames(ctx, frameKindDropped, int64(s.stats.Dropped))

	span.SetAttributes(
		attribute.String("earshot.outcome", res.Outcome()),
		attribute.String("earshot.stop_reason", reason.String()),
		attribute.Int("earshot.frames", s.stats.Buffered),
	)

	attrs := []any{
		"outcome", res.Outcome(),
		"reason", reason.String(),
		"frames", s.stats.Buffered,
		"classified", s.stats.Classified,
		"overflows", s.stats.Overflows,
		"elapsed", s.stats.Elapsed,
	}
	if de, ok := res.(DeviceError); ok {
		span.RecordError(de.Err)
		span.SetStatus(codes.Error, de.Error())
		log.Error("recording session failed", append(attrs, "err", de.Err)...)
	} else {
		log.Info("recording session finished", attrs...)
	}
	return res
}

// capture holds the device for the duration of the loop and converts the
// buffer into a Result once the source is closed. A panic from the device or
// the classifier is reported as a DeviceError.
func (s *Session) capture(ctx context.Context, log *slog.Logger, start time.Time) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = DeviceError{Err: fmt.Errorf("recorder: capture panic: %v", r)}
		}
	}()
	f := s.cfg.Format

	src, err := s.rec.device.Open(ctx, f)
	if err != nil {
		if !errors.Is(err, audio.ErrDeviceOpen) {
			err = fmt.Errorf("%w: %w", audio.ErrDeviceOpen, err)
		}
		return DeviceError{Err: err}
	}

	frames, machine, err := s.drain(ctx, log, src, start)
	if err != nil {
		return DeviceError{Err: err}
	}

	reason := machine.Reason()
	switch {
	case len(frames) == 0:
		return EmptyCapture{Reason: reason}
	case !machine.SpeechDetected():
		return NoSpeechDetected{Reason: reason, FrameCount: len(frames)}
	}

	wav, err := audio.EncodeWAV(frames, f)
	if err != nil {
		return DeviceError{Err: fmt.Errorf("recorder: encode wav: %w", err)}
	}
	var dur time.Duration
	for _, fr := range frames {
		dur += fr.Duration(f)
	}
	return Captured{
		Audio:      wav,
		FrameCount: len(frames),
		Duration:   dur,
		Reason:     reason,
	}
}

// drain runs the loop and closes src on every exit path, panics included.
func (s *Session) drain(ctx context.Context, log *slog.Logger, src audio.Source, start time.Time) (frames []audio.Frame, machine *endpoint.Machine, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("failed to close audio source", "err", cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			frames, machine = nil, nil
			err = fmt.Errorf("recorder: capture panic: %v", r)
		}
	}()
	return s.loop(ctx, log, src, start)
}

// loop is the single capture goroutine. It returns the buffered frames, the
// stopped machine, or a fatal error.
func (s *Session) loop(ctx context.Context, log *slog.Logger, src audio.Source, start time.Time) ([]audio.Frame, *endpoint.Machine, error) {
	f := s.cfg.Format
	frameBytes := f.FrameBytes()

	classifier, err := s.rec.engine.NewSession(vad.Config{
		SampleRate:     f.SampleRate,
		FrameSizeMs:    int(audio.FrameDuration / time.Millisecond),
		Aggressiveness: s.cfg.Aggressiveness,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("recorder: start vad session: %w", err)
	}
	defer classifier.Close()

	machine := endpoint.New(endpoint.Config{
		SilenceTimeout: s.cfg.SilenceTimeout,
		OverallTimeout: s.cfg.OverallTimeout,
		FrameDuration:  audio.FrameDuration,
	})
	frames := make([]audio.Frame, 0, min(int(s.cfg.OverallTimeout/audio.FrameDuration)+1, maxPreallocFrames))

	for reads := 0; ; reads++ {
		if ctx.Err() != nil {
			machine.Halt(endpoint.StopCancelled)
			break
		}
		if machine.CheckTimeout(s.rec.clock().Sub(start)) == endpoint.Stop {
			break
		}

		fr, err := src.ReadFrame()
		switch {
		case err == nil:
		case errors.Is(err, audio.ErrOverflow):
			s.stats.Overflows++
			log.Warn("audio input overflow", "read", reads, "bytes", len(fr.Data))
			if len(fr.Data) == 0 {
				s.stats.Dropped++
				continue
			}
		case errors.Is(err, io.EOF):
			machine.Halt(endpoint.StopSourceExhausted)
		default:
			if !errors.Is(err, audio.ErrDeviceRead) {
				err = fmt.Errorf("%w: %w", audio.ErrDeviceRead, err)
			}
			return nil, nil, fmt.Errorf("recorder: read %d: %w", reads, err)
		}
		if machine.State() == endpoint.Stopped {
			break
		}

		frames = append(frames, fr)
		s.stats.Buffered++

		if len(fr.Data) != frameBytes {
			s.stats.Misaligned++
			log.Debug("skipping vad for misaligned frame", "read", reads, "bytes", len(fr.Data), "want", frameBytes)
			continue
		}

		ev, err := classifier.ProcessFrame(fr.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("recorder: classify read %d: %w", reads, err)
		}
		s.stats.Classified++

		prev := machine.State()
		decision := machine.Observe(ev.IsSpeech())
		if st := machine.State(); st != prev {
			log.Debug("endpoint transition", "from", prev.String(), "to", st.String(), "read", reads)
		}
		if decision == endpoint.Stop {
			break
		}
	}
	return frames, machine, nil
}
