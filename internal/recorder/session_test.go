package recorder_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/earshot/internal/endpoint"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/recorder"
	"github.com/MrWong99/earshot/pkg/audio"
	audiomock "github.com/MrWong99/earshot/pkg/audio/mock"
	"github.com/MrWong99/earshot/pkg/provider/vad"
	vadmock "github.com/MrWong99/earshot/pkg/provider/vad/mock"
)

// fakeClock is advanced explicitly by tests, typically by 10 ms per read.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var format16k = audio.Format{SampleRate: 16000, Channels: 1}

// frame returns one aligned 16 kHz frame filled with b.
func frame(b byte) []byte {
	return bytes.Repeat([]byte{b}, format16k.FrameBytes())
}

type harness struct {
	clock  *fakeClock
	source *audiomock.Source
	device *audiomock.Device
	vad    *vadmock.Session
	engine *vadmock.Engine
	rec    *recorder.Recorder
}

// newHarness wires a recorder to scripted doubles. Every read advances the
// clock by one frame duration.
func newHarness(t *testing.T, steps []audiomock.Step, verdicts []bool, opts ...recorder.Option) *harness {
	t.Helper()
	h := &harness{clock: newFakeClock()}
	h.source = &audiomock.Source{
		Steps:  steps,
		OnRead: func(int) { h.clock.Advance(audio.FrameDuration) },
	}
	h.device = &audiomock.Device{Source: h.source}
	h.vad = &vadmock.Session{Verdicts: verdicts}
	h.engine = &vadmock.Engine{Session: h.vad}

	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	base := []recorder.Option{
		recorder.WithClock(h.clock.Now),
		recorder.WithMetrics(met),
		recorder.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	rec, err := recorder.New(h.device, h.engine, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.rec = rec
	return h
}

func (h *harness) run(t *testing.T, ctx context.Context, cfg recorder.Config) (*recorder.Session, recorder.Result) {
	t.Helper()
	sess, err := h.rec.NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return sess, sess.Run(ctx)
}

func TestRun_SpeechThenSilence_Captured(t *testing.T) {
	var steps []audiomock.Step
	steps = append(steps, audiomock.Repeat(frame(0x00), 50)...)
	steps = append(steps, audiomock.Repeat(frame(0x40), 30)...)
	steps = append(steps, audiomock.Repeat(frame(0x00), 210)...)
	h := newHarness(t, steps, vadmock.Pattern(50, false, 30, true, 210, false))

	sess, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.Captured)
	if !ok {
		t.Fatalf("result = %T (%v), want Captured", res, res)
	}
	if got.FrameCount != 281 {
		t.Errorf("FrameCount = %d, want 281", got.FrameCount)
	}
	if got.Reason != endpoint.StopSilenceAfterSpeech {
		t.Errorf("Reason = %v, want silence_after_speech", got.Reason)
	}
	if got.Duration != 2810*time.Millisecond {
		t.Errorf("Duration = %v, want 2.81s", got.Duration)
	}
	if h.source.Reads() != 281 {
		t.Errorf("reads = %d, want 281", h.source.Reads())
	}
	if h.source.Closes() != 1 {
		t.Errorf("Close calls = %d, want 1", h.source.Closes())
	}

	pcm, info, err := audio.DecodeWAV(got.Audio)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if info.Format.SampleRate != 16000 || info.NumSamples != 281*160 {
		t.Errorf("wav info = %+v, want 16000 Hz with %d samples", info, 281*160)
	}
	// Frames are serialised in capture order.
	if !bytes.Equal(pcm[50*320:51*320], frame(0x40)) {
		t.Error("first speech frame not at expected offset")
	}
	if sess.ID() == "" {
		t.Error("session ID is empty")
	}
}

func TestRun_SilenceOnly_OverallTimeout(t *testing.T) {
	silent := audiomock.Step{Data: frame(0x00)}
	h := newHarness(t, audiomock.Repeat(frame(0x00), 1500), nil)
	h.source.Tail = &silent
	h.vad.Default = vad.Silence

	sess, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.NoSpeechDetected)
	if !ok {
		t.Fatalf("result = %T, want NoSpeechDetected", res)
	}
	if got.Reason != endpoint.StopOverallTimeout {
		t.Errorf("Reason = %v, want overall_timeout", got.Reason)
	}
	if got.FrameCount < 1500 || got.FrameCount > 1501 {
		t.Errorf("FrameCount = %d, want 1500 or 1501", got.FrameCount)
	}
	over := sess.Stats().Elapsed - 15*time.Second
	if over > audio.FrameDuration {
		t.Errorf("elapsed exceeded timeout by %v, more than one frame", over)
	}
	if h.source.Closes() != 1 {
		t.Errorf("Close calls = %d, want 1", h.source.Closes())
	}
}

func TestRun_NoSpeechNeverCaptured(t *testing.T) {
	h := newHarness(t, audiomock.Repeat(frame(0x10), 40), nil)
	_, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.NoSpeechDetected)
	if !ok {
		t.Fatalf("result = %T, want NoSpeechDetected", res)
	}
	if got.Reason != endpoint.StopSourceExhausted || got.FrameCount != 40 {
		t.Errorf("got %+v, want source_exhausted with 40 frames", got)
	}
}

func TestRun_ReadErrorOnFrame10_DeviceError(t *testing.T) {
	steps := audiomock.Repeat(frame(0x40), 9)
	steps = append(steps, audiomock.Step{Err: errors.New("device unplugged")})
	h := newHarness(t, steps, vadmock.Pattern(9, true))

	_, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.DeviceError)
	if !ok {
		t.Fatalf("result = %T, want DeviceError", res)
	}
	if !errors.Is(got, audio.ErrDeviceRead) {
		t.Errorf("err = %v, want ErrDeviceRead", got.Err)
	}
	if h.source.Closes() != 1 {
		t.Errorf("Close calls = %d, want exactly 1", h.source.Closes())
	}
	if h.source.Reads() != 10 {
		t.Errorf("reads = %d, want 10", h.source.Reads())
	}
}

func TestRun_OpenFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.device.OpenErr = errors.New("no input device")

	_, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.DeviceError)
	if !ok {
		t.Fatalf("result = %T, want DeviceError", res)
	}
	if !errors.Is(got, audio.ErrDeviceOpen) {
		t.Errorf("err = %v, want ErrDeviceOpen", got.Err)
	}
	if h.source.Closes() != 0 {
		t.Errorf("Close calls = %d, want 0 for a source that never opened", h.source.Closes())
	}
	if len(h.engine.Calls()) != 0 {
		t.Error("vad session created despite open failure")
	}
}

func TestRun_ClassifierError_ClosesSource(t *testing.T) {
	h := newHarness(t, audiomock.Repeat(frame(0x40), 5), nil)
	h.vad.ProcessFrameErr = errors.New("vad exploded")

	_, res := h.run(t, context.Background(), recorder.DefaultConfig())

	if _, ok := res.(recorder.DeviceError); !ok {
		t.Fatalf("result = %T, want DeviceError", res)
	}
	if h.source.Closes() != 1 {
		t.Errorf("Close calls = %d, want 1", h.source.Closes())
	}
	if h.vad.CloseCallCount != 1 {
		t.Errorf("vad Close calls = %d, want 1", h.vad.CloseCallCount)
	}
}

// panickingSession is a classifier that panics on every frame.
type panickingSession struct{ closes int }

func (p *panickingSession) ProcessFrame([]byte) (vad.VADEvent, error) {
	panic("classifier blew up")
}

func (p *panickingSession) Close() error {
	p.closes++
	return nil
}

type panickingEngine struct{ sess *panickingSession }

func (e panickingEngine) NewSession(vad.Config) (vad.SessionHandle, error) { return e.sess, nil }

func TestRun_ClassifierPanic_ClosesSource(t *testing.T) {
	h := newHarness(t, audiomock.Repeat(frame(0x40), 3), nil)
	cls := &panickingSession{}
	rec, err := recorder.New(h.device, panickingEngine{sess: cls},
		recorder.WithClock(h.clock.Now),
		recorder.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, res := rec.Record(context.Background(), recorder.DefaultConfig())

	de, ok := res.(recorder.DeviceError)
	if !ok {
		t.Fatalf("result = %T, want DeviceError", res)
	}
	if de.Err == nil || !strings.Contains(de.Err.Error(), "classifier blew up") {
		t.Errorf("err = %v, want the panic value", de.Err)
	}
	if h.source.Closes() != 1 {
		t.Errorf("source Close calls = %d, want 1", h.source.Closes())
	}
	if cls.closes != 1 {
		t.Errorf("classifier Close calls = %d, want 1", cls.closes)
	}
}

func TestRun_ReadPanic_ClosesSource(t *testing.T) {
	h := newHarness(t, audiomock.Repeat(frame(0x00), 10), nil)
	h.source.OnRead = func(i int) {
		if i == 4 {
			panic("driver fault")
		}
	}

	_, res := h.run(t, context.Background(), recorder.DefaultConfig())

	if _, ok := res.(recorder.DeviceError); !ok {
		t.Fatalf("result = %T, want DeviceError", res)
	}
	if h.source.Closes() != 1 {
		t.Errorf("source Close calls = %d, want 1", h.source.Closes())
	}
}

func TestRun_LongOverallTimeout(t *testing.T) {
	h := newHarness(t, audiomock.Repeat(frame(0x00), 5), nil)
	h.vad.Default = vad.Silence
	cfg := recorder.DefaultConfig()
	cfg.OverallTimeout = 1000000 * time.Hour

	_, res := h.run(t, context.Background(), cfg)

	got, ok := res.(recorder.NoSpeechDetected)
	if !ok {
		t.Fatalf("result = %T, want NoSpeechDetected", res)
	}
	if got.Reason != endpoint.StopSourceExhausted || got.FrameCount != 5 {
		t.Errorf("got %+v, want 5 frames and source_exhausted", got)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	speech := audiomock.Step{Data: frame(0x40)}
	h := newHarness(t, nil, nil)
	h.source.Tail = &speech
	h.vad.Default = vad.Speech
	h.source.OnRead = func(i int) {
		h.clock.Advance(audio.FrameDuration)
		if i == 19 {
			cancel()
		}
	}

	_, res := h.run(t, ctx, recorder.DefaultConfig())

	got, ok := res.(recorder.Captured)
	if !ok {
		t.Fatalf("result = %T, want Captured", res)
	}
	if got.Reason != endpoint.StopCancelled {
		t.Errorf("Reason = %v, want cancelled", got.Reason)
	}
	if got.FrameCount != 20 {
		t.Errorf("FrameCount = %d, want 20", got.FrameCount)
	}
	if h.source.Closes() != 1 {
		t.Errorf("Close calls = %d, want 1", h.source.Closes())
	}
}

func TestRun_CancelledBeforeStart_Empty(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := newHarness(t, audiomock.Repeat(frame(0x40), 5), nil)

	_, res := h.run(t, ctx, recorder.DefaultConfig())

	got, ok := res.(recorder.EmptyCapture)
	if !ok {
		t.Fatalf("result = %T, want EmptyCapture", res)
	}
	if got.Reason != endpoint.StopCancelled {
		t.Errorf("Reason = %v, want cancelled", got.Reason)
	}
}

func TestRun_EmptySource(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.EmptyCapture)
	if !ok {
		t.Fatalf("result = %T, want EmptyCapture", res)
	}
	if got.Reason != endpoint.StopSourceExhausted {
		t.Errorf("Reason = %v, want source_exhausted", got.Reason)
	}
	if h.source.Closes() != 1 {
		t.Errorf("Close calls = %d, want 1", h.source.Closes())
	}
}

func TestRun_OverflowIsNotFatal(t *testing.T) {
	steps := []audiomock.Step{
		{Data: frame(0x40)},
		{Data: frame(0x40), Err: audio.ErrOverflow},
		{Err: audio.ErrOverflow},
		{Data: frame(0x40)},
	}
	h := newHarness(t, steps, nil)
	h.vad.Default = vad.Speech

	sess, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.Captured)
	if !ok {
		t.Fatalf("result = %T, want Captured", res)
	}
	if got.FrameCount != 3 {
		t.Errorf("FrameCount = %d, want 3 (empty overflow read skipped)", got.FrameCount)
	}
	st := sess.Stats()
	if st.Overflows != 2 || st.Dropped != 1 {
		t.Errorf("stats = %+v, want 2 overflows with 1 dropped", st)
	}
}

func TestRun_MisalignedFramesBufferedNotClassified(t *testing.T) {
	steps := []audiomock.Step{
		{Data: frame(0x40)},
		{Data: make([]byte, 100)},
		{Data: frame(0x40)},
		{Data: make([]byte, 321)},
	}
	h := newHarness(t, steps, nil)
	h.vad.Default = vad.Speech

	sess, res := h.run(t, context.Background(), recorder.DefaultConfig())

	got, ok := res.(recorder.Captured)
	if !ok {
		t.Fatalf("result = %T, want Captured", res)
	}
	if got.FrameCount != 4 {
		t.Errorf("FrameCount = %d, want 4", got.FrameCount)
	}
	if n := h.vad.Processed(); n != 2 {
		t.Errorf("classified = %d, want 2", n)
	}
	for i, call := range h.vad.ProcessFrameCalls {
		if len(call.Frame) != format16k.FrameBytes() {
			t.Errorf("call %d: classifier got %d bytes", i, len(call.Frame))
		}
	}
	if st := sess.Stats(); st.Misaligned != 2 {
		t.Errorf("Misaligned = %d, want 2", st.Misaligned)
	}
}

func TestRun_VADConfigFromSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	cfg := recorder.DefaultConfig()
	cfg.Format.SampleRate = 48000
	cfg.Aggressiveness = vad.AggressivenessVeryAggressive
	h.run(t, context.Background(), cfg)

	calls := h.engine.Calls()
	if len(calls) != 1 {
		t.Fatalf("NewSession calls = %d, want 1", len(calls))
	}
	want := vad.Config{SampleRate: 48000, FrameSizeMs: 10, Aggressiveness: 3}
	if calls[0].Cfg != want {
		t.Errorf("vad config = %+v, want %+v", calls[0].Cfg, want)
	}
	if got := h.device.OpenCalls[0].Format; got != cfg.Format {
		t.Errorf("open format = %+v, want %+v", got, cfg.Format)
	}
}

func TestRun_SecondRunRejected(t *testing.T) {
	h := newHarness(t, nil, nil)
	sess, _ := h.run(t, context.Background(), recorder.DefaultConfig())

	res := sess.Run(context.Background())
	de, ok := res.(recorder.DeviceError)
	if !ok || !errors.Is(de, recorder.ErrSessionDone) {
		t.Fatalf("second Run = %v, want ErrSessionDone", res)
	}
	if h.device.OpenCount() != 1 {
		t.Errorf("Open calls = %d, want 1", h.device.OpenCount())
	}
}

func TestRun_RecordsSessionMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := newHarness(t, audiomock.Repeat(frame(0x10), 3), nil, recorder.WithMetrics(met))
	h.run(t, context.Background(), recorder.DefaultConfig())

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "earshot.sessions" {
				continue
			}
			sum := m.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("outcome"); ok && v.AsString() == recorder.OutcomeNoSpeech {
					if dp.Value != 1 {
						t.Errorf("sessions{outcome=no_speech} = %d, want 1", dp.Value)
					}
					return
				}
			}
		}
	}
	t.Error("earshot.sessions{outcome=no_speech} not recorded")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*recorder.Config)
	}{
		{"sample rate", func(c *recorder.Config) { c.Format.SampleRate = 44100 }},
		{"stereo", func(c *recorder.Config) { c.Format.Channels = 2 }},
		{"silence timeout", func(c *recorder.Config) { c.SilenceTimeout = 0 }},
		{"overall timeout", func(c *recorder.Config) { c.OverallTimeout = -time.Second }},
		{"aggressiveness", func(c *recorder.Config) { c.Aggressiveness = 7 }},
	}
	if err := recorder.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := recorder.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := recorder.New(nil, &vadmock.Engine{}); err == nil {
		t.Error("New(nil device) = nil error")
	}
	if _, err := recorder.New(&audiomock.Device{}, nil); err == nil {
		t.Error("New(nil engine) = nil error")
	}
}
