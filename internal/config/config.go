// Package config provides the configuration schema, loader, environment
// overlay, provider registry and file watcher for earshot.
//
// Configuration is resolved in three layers: built-in defaults
// ([ApplyDefaults]), an optional YAML file ([Load]) and environment variables
// ([ApplyEnv]). The result is checked by [Validate] before use.
package config

import (
	"time"

	"github.com/MrWong99/earshot/internal/recorder"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/vad"
)

// LogLevel controls log verbosity for the earshot server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":5000"
	DefaultSampleRate        = 16000
	DefaultSilenceTimeout    = 2 * time.Second
	DefaultOverallTimeout    = 15 * time.Second
	DefaultVADAggressiveness = 1
	DefaultLanguage          = "en"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultHistoryCapacity   = 100
)

// Config is the root configuration structure for earshot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Recording  RecordingConfig  `yaml:"recording"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
	History    HistoryConfig    `yaml:"history"`
}

// ServerConfig holds network and logging settings for the HTTP server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":5000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// RecordingConfig holds the per-session capture and endpointing parameters.
// It may be hot-reloaded; a change applies from the next session on.
type RecordingConfig struct {
	// SampleRate in Hz. One of 8000, 16000, 32000, 48000.
	SampleRate int `yaml:"sample_rate"`

	// SilenceTimeout is the trailing silence after speech that ends a session.
	SilenceTimeout time.Duration `yaml:"silence_timeout"`

	// OverallTimeout caps the length of a session.
	OverallTimeout time.Duration `yaml:"overall_timeout"`

	// VADAggressiveness in [0, 3]. Nil means the default of 1.
	VADAggressiveness *int `yaml:"vad_aggressiveness"`

	// Language is the transcription language hint (ISO-639-1).
	Language string `yaml:"language"`

	// Prompt optionally guides transcription spelling.
	Prompt string `yaml:"prompt"`

	// Temperature is the transcription sampling temperature.
	Temperature float64 `yaml:"temperature"`

	// Vocabulary lists terms that transcripts are corrected towards when the
	// provider mishears them. Multi-word terms are allowed.
	Vocabulary []string `yaml:"vocabulary"`
}

// Aggressiveness returns the configured VAD mode or the default.
func (r RecordingConfig) Aggressiveness() vad.Aggressiveness {
	if r.VADAggressiveness == nil {
		return DefaultVADAggressiveness
	}
	return vad.Aggressiveness(*r.VADAggressiveness)
}

// Recorder converts r into the session parameters used by the recorder.
func (r RecordingConfig) Recorder() recorder.Config {
	return recorder.Config{
		Format:         audio.Format{SampleRate: r.SampleRate, Channels: 1},
		SilenceTimeout: r.SilenceTimeout,
		OverallTimeout: r.OverallTimeout,
		Aggressiveness: r.Aggressiveness(),
	}
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	// STT is the primary transcription backend.
	STT ProviderEntry `yaml:"stt"`

	// STTFallbacks are tried in order when STT fails.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`

	// TTS is the primary synthesis backend. Optional: without it POST /tts
	// answers 503.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallbacks are tried in order when TTS fails.
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`

	// VAD selects the voice activity classifier.
	VAD ProviderEntry `yaml:"vad"`

	// Audio selects the capture device.
	Audio ProviderEntry `yaml:"audio"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "whisper-large-v3-turbo").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// StringOption returns Options[key] if it is a string, or def.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ResilienceConfig tunes the circuit breakers around providers.
type ResilienceConfig struct {
	// MaxFailures is the number of consecutive failures before a provider's
	// breaker opens.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker waits before probing again.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// HistoryConfig selects where finished sessions are logged.
type HistoryConfig struct {
	// PostgresDSN, when set, persists the log in PostgreSQL. Otherwise an
	// in-memory log is kept.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Capacity bounds the in-memory log.
	Capacity int `yaml:"capacity"`
}
