package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// OSEnv is the process environment.
var OSEnv LookupFunc = os.LookupEnv

// Environment variables read by [ApplyEnv].
const (
	EnvSampleRate        = "EARSHOT_SAMPLE_RATE"
	EnvSilenceTimeout    = "EARSHOT_SILENCE_TIMEOUT"
	EnvOverallTimeout    = "EARSHOT_OVERALL_TIMEOUT"
	EnvVADAggressiveness = "EARSHOT_VAD_AGGRESSIVENESS"
	EnvLanguage          = "EARSHOT_LANGUAGE"
	EnvListenAddr        = "EARSHOT_LISTEN_ADDR"
	EnvLogLevel          = "EARSHOT_LOG_LEVEL"
	EnvHistoryDSN        = "EARSHOT_HISTORY_DSN"
	EnvGroqAPIKey        = "GROQ_API_KEY"
	EnvOpenAIAPIKey      = "OPENAI_API_KEY"
	EnvDeepgramAPIKey    = "DEEPGRAM_API_KEY"
	EnvElevenLabsAPIKey  = "ELEVENLABS_API_KEY"
)

// FromEnv returns the defaults overlaid with env, validated.
func FromEnv(env LookupFunc) (*Config, error) {
	cfg := Default()
	if err := ApplyEnv(cfg, env); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables on cfg. Set variables win over the
// file. API keys only fill entries whose provider matches and whose key is
// still empty. Every malformed value is reported.
func ApplyEnv(cfg *Config, env LookupFunc) error {
	var errs []error

	if v, ok := lookup(env, EnvSampleRate); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", EnvSampleRate, err))
		} else {
			cfg.Recording.SampleRate = n
		}
	}
	if v, ok := lookup(env, EnvSilenceTimeout); ok {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", EnvSilenceTimeout, err))
		} else {
			cfg.Recording.SilenceTimeout = d
		}
	}
	if v, ok := lookup(env, EnvOverallTimeout); ok {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", EnvOverallTimeout, err))
		} else {
			cfg.Recording.OverallTimeout = d
		}
	}
	if v, ok := lookup(env, EnvVADAggressiveness); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", EnvVADAggressiveness, err))
		} else {
			cfg.Recording.VADAggressiveness = &n
		}
	}
	if v, ok := lookup(env, EnvLanguage); ok {
		cfg.Recording.Language = v
	}
	if v, ok := lookup(env, EnvListenAddr); ok {
		cfg.Server.ListenAddr = v
	}
	if v, ok := lookup(env, EnvLogLevel); ok {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v, ok := lookup(env, EnvHistoryDSN); ok {
		cfg.History.PostgresDSN = v
	}

	keys := map[string]string{
		"groq":       EnvGroqAPIKey,
		"openai":     EnvOpenAIAPIKey,
		"deepgram":   EnvDeepgramAPIKey,
		"elevenlabs": EnvElevenLabsAPIKey,
	}
	fill := func(e *ProviderEntry) {
		name, ok := keys[e.Name]
		if !ok || e.APIKey != "" {
			return
		}
		if v, ok := lookup(env, name); ok {
			e.APIKey = v
		}
	}
	p := &cfg.Providers
	fill(&p.STT)
	fill(&p.TTS)
	for i := range p.STTFallbacks {
		fill(&p.STTFallbacks[i])
	}
	for i := range p.TTSFallbacks {
		fill(&p.TTSFallbacks[i])
	}

	return errors.Join(errs...)
}

// lookup treats an empty or whitespace-only value as unset.
func lookup(env LookupFunc, key string) (string, bool) {
	v, ok := env(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// parseSeconds accepts a Go duration ("1500ms") or a bare number of seconds
// ("2", "0.5").
func parseSeconds(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return time.Duration(f * float64(time.Second)), nil
}
