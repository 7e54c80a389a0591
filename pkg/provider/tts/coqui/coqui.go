// Package coqui provides a local Coqui TTS-backed tts.Synthesizer that connects
// to either a Coqui XTTS v2 server or a standard Coqui TTS server via its REST
// API.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; voice catalogue is retrieved from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body; voice catalogue is retrieved from
//     GET /studio_speakers.
//
// Both servers answer with a WAV file, which is returned unchanged after its
// header has been validated.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	clip, err := p.Synthesize(ctx, "Hello there.", tts.Voice{ID: "p225"})
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ tts.Synthesizer = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	// maxClipBytes caps the size of a synthesised clip.
	maxClipBytes = 64 << 20
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de", "fr"). Defaults to "en" if not set.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithVoice sets the speaker used when Synthesize is called with a zero Voice.
func WithVoice(id string) Option {
	return func(p *Provider) {
		p.voiceID = id
	}
}

// Provider implements tts.Synthesizer backed by a locally-running Coqui TTS server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	voiceID    string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("coqui: serverURL must not be empty: %w", tts.ErrNotConfigured)
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard, APIModeXTTS:
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models and non-nil for multi-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize issues one synthesis request and returns the server's WAV file.
// XTTS mode requires a voice; standard mode accepts an empty one for
// single-speaker models.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	if voice.ID == "" {
		voice.ID = p.voiceID
	}

	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		req, err = p.xttsRequest(ctx, text, voice)
	} else {
		req, err = p.standardRequest(ctx, text, voice)
	}
	if err != nil {
		return tts.Audio{}, err
	}
	req.Header.Set("Accept", tts.MediaTypeWAV)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Audio{}, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(io.LimitReader(resp.Body, maxClipBytes))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	if _, _, err := audio.DecodeWAV(wav); err != nil {
		return tts.Audio{}, fmt.Errorf("coqui: invalid WAV response: %w", err)
	}
	return tts.Audio{Data: wav, MediaType: tts.MediaTypeWAV}, nil
}

// xttsRequest builds a POST /tts_to_audio/ call (XTTS v2 mode).
func (p *Provider) xttsRequest(ctx context.Context, text string, voice tts.Voice) (*http.Request, error) {
	if voice.ID == "" {
		return nil, errors.New("coqui: XTTS mode requires a voice")
	}
	data, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: voice.ID,
		Language:   p.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// standardRequest builds a GET /api/tts call (standard server mode).
func (p *Provider) standardRequest(ctx context.Context, text string, voice tts.Voice) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice.ID != "" {
		params.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// ListVoices retrieves the list of available voices from the Coqui server.
//
// In APIModeXTTS, it calls GET /studio_speakers. In APIModeStandard, it calls
// GET /details and returns one Voice per speaker for multi-speaker models, or
// a single Voice (identified by model name) for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.apiMode == APIModeXTTS {
		var raw map[string]json.RawMessage
		if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		sort.Strings(names)
		return voices(names, map[string]string{"type": "studio"}), nil
	}

	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}
	if len(details.Speakers) > 0 {
		speakers := append([]string(nil), details.Speakers...)
		sort.Strings(speakers)
		return voices(speakers, map[string]string{"type": "speaker", "model_name": details.ModelName}), nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return voices([]string{name}, map[string]string{"type": "single-speaker", "model_name": name}), nil
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}

func voices(ids []string, meta map[string]string) []tts.Voice {
	out := make([]tts.Voice, 0, len(ids))
	for _, id := range ids {
		m := make(map[string]string, len(meta))
		for k, v := range meta {
			m[k] = v
		}
		out = append(out, tts.Voice{ID: id, Name: id, Provider: "coqui", Metadata: m})
	}
	return out
}
