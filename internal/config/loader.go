package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/earshot/pkg/audio"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"openai", "groq", "whisper", "whisper-native", "deepgram"},
	"tts":   {"elevenlabs", "coqui"},
	"vad":   {"webrtc", "energy"},
	"audio": {"portaudio", "wavfile"},
}

// Default returns a config holding only built-in defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads the YAML configuration file at path, overlays env and returns a
// validated [Config]. env may be nil to skip the overlay.
func Load(path string, env LookupFunc) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), env)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and the env
// overlay, and validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader, env LookupFunc) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if env != nil {
		if err := ApplyEnv(cfg, env); err != nil {
			return nil, err
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	rec := &cfg.Recording
	if rec.SampleRate == 0 {
		rec.SampleRate = DefaultSampleRate
	}
	if rec.SilenceTimeout == 0 {
		rec.SilenceTimeout = DefaultSilenceTimeout
	}
	if rec.OverallTimeout == 0 {
		rec.OverallTimeout = DefaultOverallTimeout
	}
	if rec.VADAggressiveness == nil {
		v := DefaultVADAggressiveness
		rec.VADAggressiveness = &v
	}
	if rec.Language == "" {
		rec.Language = DefaultLanguage
	}

	p := &cfg.Providers
	if p.STT.Name == "" {
		p.STT.Name = "groq"
	}
	if p.VAD.Name == "" {
		p.VAD.Name = "webrtc"
	}
	if p.Audio.Name == "" {
		p.Audio.Name = "portaudio"
	}

	if cfg.Resilience.MaxFailures == 0 {
		cfg.Resilience.MaxFailures = 3
	}
	if cfg.Resilience.ResetTimeout == 0 {
		cfg.Resilience.ResetTimeout = 30 * time.Second
	}

	if cfg.History.Capacity == 0 {
		cfg.History.Capacity = DefaultHistoryCapacity
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %v must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Recording
	rec := cfg.Recording
	if !slices.Contains(audio.SupportedSampleRates, rec.SampleRate) {
		errs = append(errs, fmt.Errorf("recording.sample_rate %d is invalid; valid values: %v", rec.SampleRate, audio.SupportedSampleRates))
	}
	if rec.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("recording.silence_timeout %v must be positive", rec.SilenceTimeout))
	}
	if rec.OverallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("recording.overall_timeout %v must be positive", rec.OverallTimeout))
	}
	if rec.SilenceTimeout > 0 && rec.OverallTimeout > 0 && rec.SilenceTimeout >= rec.OverallTimeout {
		slog.Warn("recording.silence_timeout is not shorter than overall_timeout; sessions will always end on the overall timeout",
			"silence_timeout", rec.SilenceTimeout,
			"overall_timeout", rec.OverallTimeout,
		)
	}
	if !rec.Aggressiveness().IsValid() {
		errs = append(errs, fmt.Errorf("recording.vad_aggressiveness %d is out of range [0, 3]", rec.Aggressiveness()))
	}
	if rec.Temperature < 0 || rec.Temperature > 1 {
		errs = append(errs, fmt.Errorf("recording.temperature %.2f is out of range [0, 1]", rec.Temperature))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for _, e := range cfg.Providers.STTFallbacks {
		validateProviderName("stt", e.Name)
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for _, e := range cfg.Providers.TTSFallbacks {
		validateProviderName("tts", e.Name)
	}
	if cfg.Providers.TTS.Name == "" && len(cfg.Providers.TTSFallbacks) > 0 {
		errs = append(errs, errors.New("providers.tts_fallbacks requires providers.tts"))
	}
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("audio", cfg.Providers.Audio.Name)
	for i, e := range append(cfg.Providers.STTFallbacks, cfg.Providers.TTSFallbacks...) {
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("providers fallback #%d: name is required", i))
		}
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %v must not be negative", cfg.Resilience.ResetTimeout))
	}

	// History
	if cfg.History.Capacity < 0 {
		errs = append(errs, fmt.Errorf("history.capacity %d must not be negative", cfg.History.Capacity))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
