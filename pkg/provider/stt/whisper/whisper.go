// Package whisper provides stt.Transcriber implementations backed by
// whisper.cpp.
//
// [Provider] talks to a running whisper-server binary, which exposes a REST
// API at POST /inference and accepts the recording as a multipart WAV upload.
// [NativeProvider] links whisper.cpp directly through its Go bindings (CGO)
// and runs inference in-process.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("base.en"))
//	text, err := p.Transcribe(ctx, wav, stt.DefaultOptions())
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/earshot/pkg/provider/stt"
)

const (
	defaultTimeout = 60 * time.Second

	// maxResponseBytes caps how much of a server response is read.
	maxResponseBytes = 1 << 20
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithDefaults sets the options applied when a call leaves fields empty.
// Defaults to stt.DefaultOptions().
func WithDefaults(o stt.Options) Option {
	return func(p *Provider) {
		p.defaults = o
	}
}

// WithHTTPClient replaces the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Transcriber backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	defaults   stt.Options
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("whisper: serverURL must not be empty: %w", stt.ErrNotConfigured)
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		defaults:   stt.DefaultOptions(),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe POSTs wav to the server's /inference endpoint as
// multipart/form-data and returns the trimmed text.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (string, error) {
	if len(wav) == 0 {
		return "", stt.ErrEmptyAudio
	}
	opts = opts.WithDefaults(p.defaults)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64)},
	}
	if opts.Language != "" {
		fields = append(fields, [2]string{"language", opts.Language})
	}
	if opts.Prompt != "" {
		fields = append(fields, [2]string{"prompt", opts.Prompt})
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper: server error: %w", errors.New(result.Error))
	}
	return strings.TrimSpace(result.Text), nil
}
