package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/earshot/internal/config"
)

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "timeouts as seconds",
			env: map[string]string{
				config.EnvSilenceTimeout: "3",
				config.EnvOverallTimeout: "12.5",
			},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Recording.SilenceTimeout != 3*time.Second {
					t.Errorf("silence_timeout: got %v", cfg.Recording.SilenceTimeout)
				}
				if cfg.Recording.OverallTimeout != 12500*time.Millisecond {
					t.Errorf("overall_timeout: got %v", cfg.Recording.OverallTimeout)
				}
			},
		},
		{
			name: "timeouts as durations",
			env:  map[string]string{config.EnvSilenceTimeout: "750ms"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Recording.SilenceTimeout != 750*time.Millisecond {
					t.Errorf("silence_timeout: got %v", cfg.Recording.SilenceTimeout)
				}
			},
		},
		{
			name: "aggressiveness zero",
			env:  map[string]string{config.EnvVADAggressiveness: "0"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Recording.Aggressiveness() != 0 {
					t.Errorf("vad_aggressiveness: got %d", cfg.Recording.Aggressiveness())
				}
			},
		},
		{
			name: "blank values are ignored",
			env: map[string]string{
				config.EnvListenAddr: "  ",
				config.EnvLanguage:   "",
			},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Server.ListenAddr != config.DefaultListenAddr {
					t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
				}
				if cfg.Recording.Language != config.DefaultLanguage {
					t.Errorf("language: got %q", cfg.Recording.Language)
				}
			},
		},
		{
			name: "groq key fills default stt",
			env: map[string]string{
				config.EnvGroqAPIKey:   "gsk",
				config.EnvOpenAIAPIKey: "sk",
			},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.Providers.STT.APIKey != "gsk" {
					t.Errorf("stt api_key: got %q, want gsk", cfg.Providers.STT.APIKey)
				}
			},
		},
		{
			name: "history dsn",
			env:  map[string]string{config.EnvHistoryDSN: "postgres://earshot@db/earshot"},
			check: func(t *testing.T, cfg *config.Config) {
				if cfg.History.PostgresDSN != "postgres://earshot@db/earshot" {
					t.Errorf("history.postgres_dsn: got %q", cfg.History.PostgresDSN)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			if err := config.ApplyEnv(cfg, mapEnv(tt.env)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestApplyEnv_KeysDoNotOverrideFile(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Providers.TTS = config.ProviderEntry{Name: "elevenlabs", APIKey: "from-file"}
	cfg.Providers.STTFallbacks = []config.ProviderEntry{{Name: "deepgram"}}

	env := mapEnv(map[string]string{
		config.EnvElevenLabsAPIKey: "from-env",
		config.EnvDeepgramAPIKey:   "dg",
	})
	if err := config.ApplyEnv(cfg, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.TTS.APIKey != "from-file" {
		t.Errorf("tts api_key: got %q, want from-file", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.STTFallbacks[0].APIKey != "dg" {
		t.Errorf("deepgram fallback api_key: got %q, want dg", cfg.Providers.STTFallbacks[0].APIKey)
	}
}

func TestApplyEnv_Malformed(t *testing.T) {
	t.Parallel()

	env := mapEnv(map[string]string{
		config.EnvSampleRate:        "fast",
		config.EnvSilenceTimeout:    "soon",
		config.EnvVADAggressiveness: "high",
	})
	err := config.ApplyEnv(config.Default(), env)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{config.EnvSampleRate, config.EnvSilenceTimeout, config.EnvVADAggressiveness} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	t.Parallel()

	_, err := config.FromEnv(mapEnv(map[string]string{config.EnvSampleRate: "44100"}))
	if err == nil {
		t.Fatal("expected validation error for 44100 Hz, got nil")
	}
}
