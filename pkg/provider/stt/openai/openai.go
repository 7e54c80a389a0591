// Package openai provides an stt.Transcriber backed by any OpenAI-compatible
// /audio/transcriptions endpoint.
//
// The default target is Groq's hosted Whisper (whisper-large-v3-turbo), which
// speaks the OpenAI wire format; pointing WithBaseURL at api.openai.com and
// choosing "whisper-1" uses OpenAI itself.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

const (
	// GroqBaseURL is Groq's OpenAI-compatible API root.
	GroqBaseURL = "https://api.groq.com/openai/v1"

	// DefaultModel is Groq's fast multilingual Whisper.
	DefaultModel = "whisper-large-v3-turbo"
)

// Ensure Provider implements the stt.Transcriber interface.
var _ stt.Transcriber = (*Provider)(nil)

// Provider implements stt.Transcriber using the openai-go client.
type Provider struct {
	client   oai.Client
	model    string
	defaults stt.Options
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	defaults   stt.Options
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API root. Default: GroqBaseURL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries transient failures.
// Negative values keep the client default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// WithDefaults sets the options applied when a call leaves fields empty.
func WithDefaults(o stt.Options) Option {
	return func(c *config) {
		c.defaults = o
	}
}

// New constructs a Provider. If model is empty, DefaultModel is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty: %w", stt.ErrNotConfigured)
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{
		baseURL:    GroqBaseURL,
		maxRetries: -1,
		defaults:   stt.DefaultOptions(),
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.baseURL),
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		defaults: cfg.defaults,
	}, nil
}

// ModelID returns the model sent with every request.
func (p *Provider) ModelID() string { return p.model }

// Transcribe implements stt.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (string, error) {
	if len(wav) == 0 {
		return "", stt.ErrEmptyAudio
	}
	opts = opts.WithDefaults(p.defaults)

	params := oai.AudioTranscriptionNewParams{
		File:        oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model:       oai.AudioModel(p.model),
		Temperature: oai.Float(opts.Temperature),
	}
	if opts.Language != "" {
		params.Language = oai.String(opts.Language)
	}
	if opts.Prompt != "" {
		params.Prompt = oai.String(opts.Prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
