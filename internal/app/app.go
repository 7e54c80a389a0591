// Package app wires the earshot subsystems into a running service.
//
// The App owns the recorder, the session gate and the transcription and
// synthesis providers. Listen runs one recording session and hands the
// captured clip to transcription; Handler exposes everything over HTTP.
//
// For testing, inject mock providers through [Providers] and replace the
// clock or logger via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/recorder"
	"github.com/MrWong99/earshot/internal/transcript"
	"github.com/MrWong99/earshot/internal/transcript/phonetic"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/history"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// minTranscriptLen is the shortest trimmed transcript treated as speech.
// Single characters are usually transcription noise.
const minTranscriptLen = 2

// History outcome labels beyond the recorder's own.
const (
	OutcomeTranscribed        = "transcribed"
	OutcomeTranscriptionError = "transcription_error"
)

var (
	// ErrTranscription wraps every failure of the transcription provider.
	ErrTranscription = errors.New("app: transcription failed")

	// ErrSynthesis wraps every failure of the synthesis provider.
	ErrSynthesis = errors.New("app: speech synthesis failed")

	// ErrTTSNotConfigured is returned by Speak and Voices when no synthesis
	// provider is configured.
	ErrTTSNotConfigured = errors.New("app: speech synthesis not configured")
)

// Providers holds one interface value per provider slot. STT, VAD and Audio
// are required; TTS and Voices may be nil. Populated by main.go via the
// config registry.
type Providers struct {
	STT    stt.Transcriber
	TTS    tts.Synthesizer
	Voices tts.VoiceLister
	VAD    vad.Engine
	Audio  audio.Device
}

// ListenResult is the outcome of [App.Listen].
type ListenResult struct {
	// SessionID identifies the recording session.
	SessionID string

	// Result is the recorder's terminal outcome.
	Result recorder.Result

	// Stats are the session's capture statistics.
	Stats recorder.Stats

	// Transcript is the trimmed transcription of a captured clip. Empty for
	// every other outcome.
	Transcript string
}

// Heard reports whether the session captured speech that transcribed to
// something longer than noise.
func (r ListenResult) Heard() bool {
	_, ok := r.Result.(recorder.Captured)
	return ok && utf8.RuneCountInString(r.Transcript) >= minTranscriptLen
}

// App owns the recording pipeline and the provider chain.
type App struct {
	providers *Providers
	recorder  *recorder.Recorder
	gate      *Gate
	recording atomic.Pointer[config.RecordingConfig]
	vocab     atomic.Pointer[phonetic.Vocabulary]
	corrector *transcript.Corrector
	history   history.Store
	voice     tts.Voice

	logger         *slog.Logger
	level          *slog.LevelVar
	metrics        *observe.Metrics
	metricsHandler http.Handler
	checkers       []health.Checker
	clock          func() time.Time
	recorderOpts   []recorder.Option
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the application logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics sets the metric instruments. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithCheckers adds readiness checks next to the built-in ones.
func WithCheckers(c ...health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c...) }
}

// WithHistory sets the session log. Default: an in-memory store sized by
// history.capacity.
func WithHistory(s history.Store) Option {
	return func(a *App) { a.history = s }
}

// WithVoice overrides the synthesis voice taken from the config.
func WithVoice(v tts.Voice) Option {
	return func(a *App) { a.voice = v }
}

// WithClock replaces time.Now for the gate and the recorder.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.clock = now }
}

// WithRecorderOptions passes extra options to the recorder.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(a *App) { a.recorderOpts = append(a.recorderOpts, opts...) }
}

// New creates an App from cfg and providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	var errs []error
	if providers.STT == nil {
		errs = append(errs, errors.New("app: stt provider is required"))
	}
	if providers.VAD == nil {
		errs = append(errs, errors.New("app: vad engine is required"))
	}
	if providers.Audio == nil {
		errs = append(errs, errors.New("app: audio device is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	a := &App{
		providers: providers,
		clock:     time.Now,
		voice:     tts.Voice{ID: cfg.Providers.TTS.StringOption("voice_id", "")},
	}
	for _, o := range opts {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.history == nil {
		a.history = history.NewMemStore(cfg.History.Capacity, history.WithClock(a.clock))
	}
	if a.level != nil {
		a.level.Set(slogLevel(cfg.Server.LogLevel))
	}
	a.gate = NewGate(a.clock)

	recOpts := append([]recorder.Option{
		recorder.WithLogger(a.logger),
		recorder.WithMetrics(a.metrics),
		recorder.WithClock(a.clock),
	}, a.recorderOpts...)
	rec, err := recorder.New(providers.Audio, providers.VAD, recOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.recorder = rec

	rc := cfg.Recording
	if err := rc.Recorder().Validate(); err != nil {
		return nil, fmt.Errorf("app: recording config: %w", err)
	}
	a.storeRecording(rc)
	a.corrector = transcript.NewCorrector(nil)

	a.checkers = append([]health.Checker{
		health.VADChecker(providers.VAD, rc.Recorder().Format),
	}, a.checkers...)
	if sr, ok := providers.STT.(health.StatusReporter); ok {
		a.checkers = append(a.checkers, health.ProviderChecker("stt", sr))
	}
	if sr, ok := providers.TTS.(health.StatusReporter); ok {
		a.checkers = append(a.checkers, health.ProviderChecker("tts", sr))
	}
	if p, ok := a.history.(health.Pinger); ok {
		a.checkers = append(a.checkers, health.PingChecker("history", p))
	}

	return a, nil
}

// Recording returns the recording parameters the next session will use.
func (a *App) Recording() config.RecordingConfig {
	return *a.recording.Load()
}

func (a *App) storeRecording(rc config.RecordingConfig) {
	a.vocab.Store(phonetic.Prepare(rc.Vocabulary))
	a.recording.Store(&rc)
}

// Gate returns the session gate.
func (a *App) Gate() *Gate { return a.gate }

// ApplyConfig applies the hot-reloadable parts of a config change. It is
// meant as the [config.Watcher] callback. A running session keeps the
// parameters it started with.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.RecordingChanged {
		rc := d.NewRecording
		if err := rc.Recorder().Validate(); err != nil {
			a.logger.Warn("ignoring invalid recording config", "err", err)
		} else {
			a.storeRecording(rc)
			a.logger.Info("recording config updated",
				"sample_rate", rc.SampleRate,
				"silence_timeout", rc.SilenceTimeout,
				"overall_timeout", rc.OverallTimeout,
				"vad_aggressiveness", int(rc.Aggressiveness()),
			)
		}
	}
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		a.logger.Info("log level updated", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		a.logger.Warn("config change requires restart", "sections", d.RestartRequired)
	}
}

// Listen runs one recording session and transcribes the captured clip.
// It returns an error wrapping [ErrSessionActive] while another session runs
// and one wrapping [ErrTranscription] when the provider fails. Every recorder
// outcome, DeviceError included, is reported through ListenResult.Result.
func (a *App) Listen(ctx context.Context, remote string) (ListenResult, error) {
	rc := a.Recording()
	sess, err := a.recorder.NewSession(rc.Recorder())
	if err != nil {
		return ListenResult{}, fmt.Errorf("app: new session: %w", err)
	}
	release, err := a.gate.Acquire(sess.ID(), remote)
	if err != nil {
		return ListenResult{}, err
	}
	defer release()
	res := sess.Run(ctx)
	release()

	out := ListenResult{
		SessionID: sess.ID(),
		Result:    res,
		Stats:     sess.Stats(),
	}
	captured, ok := res.(recorder.Captured)
	if !ok {
		a.recordListen(ctx, out, nil)
		return out, nil
	}

	text, err := a.transcribe(ctx, captured.Audio, rc)
	if err != nil {
		a.recordListen(ctx, out, err)
		return out, err
	}
	out.Transcript = text
	if !out.Heard() {
		observe.Enrich(ctx, a.logger).Info("transcript too short, treating as no speech",
			"session_id", out.SessionID,
			"transcript", text,
		)
	}
	a.recordListen(ctx, out, nil)
	return out, nil
}

// recordListen logs a finished session to the history store.
func (a *App) recordListen(ctx context.Context, r ListenResult, err error) {
	e := history.Entry{
		SessionID:  r.SessionID,
		Source:     history.SourceListen,
		Outcome:    r.Result.Outcome(),
		StopReason: recorder.ReasonOf(r.Result).String(),
		Frames:     r.Stats.Buffered,
		Duration:   r.Stats.Elapsed,
	}
	switch {
	case err != nil:
		e.Outcome = OutcomeTranscriptionError
	case r.Heard():
		e.Transcript = r.Transcript
	case e.Outcome == recorder.OutcomeCaptured:
		e.Outcome = recorder.OutcomeNoSpeech
	}
	a.record(ctx, e)
}

func (a *App) record(ctx context.Context, e history.Entry) {
	if err := a.history.Write(ctx, e); err != nil {
		observe.Enrich(ctx, a.logger).Warn("failed to write session history",
			"session_id", e.SessionID,
			"err", err,
		)
	}
}

// History lists logged sessions, newest first.
func (a *App) History(ctx context.Context, q history.Query) ([]history.Entry, error) {
	return a.history.List(ctx, q)
}

// Transcribe sends a WAV file through the transcription chain with the
// current recording language hints.
// The upload is logged to the history store under a fresh session ID.
func (a *App) Transcribe(ctx context.Context, wav []byte) (string, error) {
	start := a.clock()
	text, err := a.transcribe(ctx, wav, a.Recording())

	e := history.Entry{
		SessionID:  uuid.NewString(),
		Source:     history.SourceUpload,
		Outcome:    OutcomeTranscribed,
		Transcript: text,
		Duration:   a.clock().Sub(start),
	}
	if err != nil {
		e.Outcome = OutcomeTranscriptionError
	}
	a.record(ctx, e)
	return text, err
}

func (a *App) transcribe(ctx context.Context, wav []byte, rc config.RecordingConfig) (string, error) {
	ctx, span := observe.StartSpan(ctx, "app.transcribe")
	defer span.End()

	start := time.Now()
	text, err := a.providers.STT.Transcribe(ctx, wav, stt.Options{
		Language:    rc.Language,
		Temperature: rc.Temperature,
		Prompt:      rc.Prompt,
	})
	a.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)

	text, corrections := a.corrector.Correct(text, a.vocab.Load())
	for _, c := range corrections {
		observe.Enrich(ctx, a.logger).Debug("transcript corrected",
			"original", c.Original,
			"corrected", c.Corrected,
			"confidence", c.Confidence,
		)
	}
	return text, nil
}

// Speak synthesizes text with the configured voice.
func (a *App) Speak(ctx context.Context, text string) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	if a.providers.TTS == nil {
		return tts.Audio{}, ErrTTSNotConfigured
	}

	ctx, span := observe.StartSpan(ctx, "app.speak")
	defer span.End()

	start := time.Now()
	clip, err := a.providers.TTS.Synthesize(ctx, text, a.voice)
	a.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return tts.Audio{}, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	return clip, nil
}

// Voices lists the voices of the synthesis provider.
func (a *App) Voices(ctx context.Context) ([]tts.Voice, error) {
	if a.providers.Voices == nil {
		return nil, ErrTTSNotConfigured
	}
	return a.providers.Voices.ListVoices(ctx)
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
