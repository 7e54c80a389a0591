package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MrWong99/earshot/internal/app"
	"github.com/MrWong99/earshot/internal/config"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/audio/portaudio"
	"github.com/MrWong99/earshot/pkg/audio/wavfile"
	"github.com/MrWong99/earshot/pkg/provider/stt"
	"github.com/MrWong99/earshot/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/earshot/pkg/provider/stt/openai"
	"github.com/MrWong99/earshot/pkg/provider/stt/whisper"
	"github.com/MrWong99/earshot/pkg/provider/tts"
	"github.com/MrWong99/earshot/pkg/provider/tts/coqui"
	"github.com/MrWong99/earshot/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/earshot/pkg/provider/vad"
	"github.com/MrWong99/earshot/pkg/provider/vad/energy"
	"github.com/MrWong99/earshot/pkg/provider/vad/webrtc"
)

// openAIBaseURL is the OpenAI API root used by the "openai" STT provider.
const openAIBaseURL = "https://api.openai.com/v1"

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	// groq and openai share the OpenAI-compatible transcription endpoint.
	reg.RegisterSTT("groq", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		model := entry.Model
		if model == "" {
			model = "whisper-1"
		}
		return sttopenai.New(entry.APIKey, model, sttopenai.WithBaseURL(baseURL))
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.StringOption("model_path", "")
		}
		return whisper.NewNative(modelPath)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if kw := keywords(entry.Options["keywords"]); len(kw) > 0 {
			opts = append(opts, deepgram.WithKeywords(kw...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f := entry.StringOption("output_format", ""); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if v := entry.StringOption("voice_id", ""); v != "" {
			opts = append(opts, elevenlabs.WithVoice(v))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []coqui.Option
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.StringOption("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if v := entry.StringOption("voice_id", ""); v != "" {
			opts = append(opts, coqui.WithVoice(v))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("webrtc", func(config.ProviderEntry) (vad.Engine, error) {
		return webrtc.New(), nil
	})

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if raw, ok := entry.Options["thresholds"]; ok {
			t, err := thresholds(raw)
			if err != nil {
				return nil, fmt.Errorf("energy vad: %w", err)
			}
			opts = append(opts, energy.WithThresholds(t))
		}
		return energy.New(opts...), nil
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(config.ProviderEntry) (audio.Device, error) {
		return portaudio.New(), nil
	})

	reg.RegisterAudio("wavfile", func(entry config.ProviderEntry) (audio.Device, error) {
		realtime, _ := entry.Options["realtime"].(bool)
		return wavfile.New(entry.StringOption("path", ""), wavfile.WithRealtime(realtime))
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct. STT and TTS are wrapped in
// fallback chains with one circuit breaker per backend. The returned closers
// release native resources.
func buildProviders(cfg *config.Config, reg *config.Registry, met *observe.Metrics, logger *slog.Logger) (*app.Providers, []io.Closer, error) {
	ps := &app.Providers{}
	var closers []io.Closer
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	fail := func(err error) (*app.Providers, []io.Closer, error) {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}

	fbCfg := func(kind string) resilience.FallbackConfig {
		return resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  cfg.Resilience.MaxFailures,
				ResetTimeout: cfg.Resilience.ResetTimeout,
				Logger:       logger,
			},
			Kind:    kind,
			Metrics: met,
			Logger:  logger,
		}
	}

	// STT chain.
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return fail(fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err))
	}
	track(primary)
	sttChain := resilience.NewTranscriberFallback(primary, cfg.Providers.STT.Name, fbCfg("stt"))
	logger.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)
	for _, e := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(e)
		if err != nil {
			return fail(fmt.Errorf("create stt fallback %q: %w", e.Name, err))
		}
		track(p)
		sttChain.AddFallback(e.Name, p)
		logger.Info("provider created", "kind", "stt", "name", e.Name, "fallback", true)
	}
	ps.STT = sttChain

	// TTS chain (optional).
	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return fail(fmt.Errorf("create tts provider %q: %w", name, err))
		}
		if vl, ok := p.(tts.VoiceLister); ok {
			ps.Voices = vl
		}
		ttsChain := resilience.NewSynthesizerFallback(p, name, fbCfg("tts"))
		logger.Info("provider created", "kind", "tts", "name", name)
		for _, e := range cfg.Providers.TTSFallbacks {
			fb, err := reg.CreateTTS(e)
			if err != nil {
				return fail(fmt.Errorf("create tts fallback %q: %w", e.Name, err))
			}
			ttsChain.AddFallback(e.Name, fb)
			logger.Info("provider created", "kind", "tts", "name", e.Name, "fallback", true)
		}
		ps.TTS = ttsChain
	}

	vadEngine, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return fail(fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err))
	}
	ps.VAD = vadEngine
	logger.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)

	device, err := reg.CreateAudio(cfg.Providers.Audio)
	if err != nil {
		return fail(fmt.Errorf("create audio provider %q: %w", cfg.Providers.Audio.Name, err))
	}
	ps.Audio = device
	logger.Info("provider created", "kind", "audio", "name", cfg.Providers.Audio.Name)

	return ps, closers, nil
}

// keywords parses deepgram keyword boosts given as "word" or "word:boost".
func keywords(raw any) []deepgram.Keyword {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []deepgram.Keyword
	for _, item := range list {
		s, ok := item.(string)
		if !ok || s == "" {
			continue
		}
		word, boost, found := strings.Cut(s, ":")
		kw := deepgram.Keyword{Word: word}
		if found {
			if b, err := strconv.ParseFloat(boost, 64); err == nil {
				kw.Boost = b
			}
		}
		out = append(out, kw)
	}
	return out
}

// thresholds parses a four-element YAML list of RMS thresholds.
func thresholds(raw any) ([4]float64, error) {
	var t [4]float64
	list, ok := raw.([]any)
	if !ok || len(list) != 4 {
		return t, errors.New("thresholds must be a list of four numbers")
	}
	for i, v := range list {
		switch n := v.(type) {
		case int:
			t[i] = float64(n)
		case float64:
			t[i] = n
		default:
			return t, fmt.Errorf("threshold %d: %v is not a number", i, v)
		}
	}
	return t, nil
}
