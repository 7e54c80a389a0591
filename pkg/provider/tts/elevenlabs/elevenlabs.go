// Package elevenlabs provides an ElevenLabs-backed tts.Synthesizer using the
// ElevenLabs streaming WebSocket API. The whole text is sent in one message,
// flushed, and the streamed MP3 chunks are concatenated into a single clip.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/earshot/pkg/provider/tts"
)

const (
	wsEndpoint       = "wss://api.elevenlabs.io/v1/text-to-speech"
	voicesEndpoint   = "https://api.elevenlabs.io/v1/voices"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	// DefaultVoiceID is the "Rachel" premade voice.
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
)

var (
	_ tts.Synthesizer = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128",
// "mp3_22050_32").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoice sets the voice used when Synthesize is called with a zero Voice.
func WithVoice(id string) Option {
	return func(p *Provider) {
		p.voiceID = id
	}
}

// WithEndpoints overrides the WebSocket base URL and the voices URL.
func WithEndpoints(ws, voices string) Option {
	return func(p *Provider) {
		p.wsEndpoint = strings.TrimRight(ws, "/")
		p.voicesURL = voices
	}
}

// WithHTTPClient replaces the client used for ListVoices.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Synthesizer backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	voiceID      string
	wsEndpoint   string
	voicesURL    string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: apiKey must not be empty: %w", tts.ErrNotConfigured)
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		voiceID:      DefaultVoiceID,
		wsEndpoint:   wsEndpoint,
		voicesURL:    voicesEndpoint,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for a text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded chunk in the requested format
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize renders text to MP3 over a single WebSocket session.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = p.voiceID
	}

	conn, _, err := websocket.Dial(ctx, p.buildURL(voiceID), nil)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(4 << 20)

	// ElevenLabs requires a non-empty first text value; a single space opens
	// the stream and carries the credentials.
	msgs := []textMessage{
		{
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      p.apiKey,
		},
		{Text: text + " "},
		{Text: ""},
	}
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return tts.Audio{}, fmt.Errorf("elevenlabs: marshal message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return tts.Audio{}, fmt.Errorf("elevenlabs: send text: %w", err)
		}
	}

	var clip bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return tts.Audio{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return tts.Audio{}, fmt.Errorf("elevenlabs: server error: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return tts.Audio{}, fmt.Errorf("elevenlabs: decode audio chunk: %w", err)
			}
			clip.Write(chunk)
		}
		if resp.IsFinal {
			break
		}
	}
	if clip.Len() == 0 {
		return tts.Audio{}, fmt.Errorf("elevenlabs: no audio received for voice %q", voiceID)
	}
	return tts.Audio{Data: clip.Bytes(), MediaType: mediaTypeFor(p.outputFormat)}, nil
}

// buildURL constructs the WebSocket URL for a given voice.
func (p *Provider) buildURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return p.wsEndpoint + "/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// mediaTypeFor maps an ElevenLabs output_format to a MIME type.
func mediaTypeFor(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return tts.MediaTypeMPEG
	case strings.HasPrefix(format, "pcm"):
		return "audio/L16"
	case strings.HasPrefix(format, "ulaw"):
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toVoices(vr), nil
}

func toVoices(vr voicesResponse) []tts.Voice {
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, tts.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return voices
}
