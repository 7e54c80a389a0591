// Package deepgram provides a Deepgram-backed stt.Transcriber. A finished
// recording is replayed over the Deepgram streaming WebSocket API and the
// final transcript segments are joined into one string.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"

	// chunkFrames is how many 10 ms frames each binary message carries.
	chunkFrames = 10
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// Keyword is a term Deepgram should favour, with an intensifier.
type Keyword struct {
	Word  string
	Boost float64
}

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the WebSocket URL. Useful for tests and on-prem
// deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithKeywords sets keywords boosted on every request.
func WithKeywords(kw ...Keyword) Option {
	return func(p *Provider) {
		p.keywords = kw
	}
}

// WithDefaults sets the options applied when a call leaves fields empty.
func WithDefaults(o stt.Options) Option {
	return func(p *Provider) {
		p.defaults = o
	}
}

// Provider implements stt.Transcriber backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	endpoint string
	keywords []Keyword
	defaults stt.Options
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram: apiKey must not be empty: %w", stt.ErrNotConfigured)
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		endpoint: deepgramEndpoint,
		defaults: stt.DefaultOptions(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe decodes wav, streams its PCM payload to Deepgram followed by a
// CloseStream message, and returns the concatenated final transcripts.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, opts stt.Options) (string, error) {
	if len(wav) == 0 {
		return "", stt.ErrEmptyAudio
	}
	opts = opts.WithDefaults(p.defaults)

	pcm, info, err := audio.DecodeWAV(wav)
	if err != nil {
		return "", fmt.Errorf("deepgram: decode wav: %w", err)
	}

	wsURL, err := p.buildURL(opts, info.Format)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 20)

	var finals []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writeAudio(gctx, conn, pcm, chunkFrames*info.Format.FrameBytes())
	})
	g.Go(func() error {
		var err error
		finals, err = readFinals(gctx, conn)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(finals, " "), nil
}

// buildURL constructs the Deepgram streaming endpoint URL for one request.
func (p *Provider) buildURL(opts stt.Options, f audio.Format) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	if f.Channels > 0 {
		q.Set("channels", strconv.Itoa(f.Channels))
	}

	for _, kw := range p.keywords {
		// Deepgram keyword format: word:boost (e.g., "Eldrinax:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Word, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// writeAudio sends pcm in chunkBytes-sized binary messages and then asks
// Deepgram to flush and close the stream.
func writeAudio(ctx context.Context, conn *websocket.Conn, pcm []byte, chunkBytes int) error {
	if chunkBytes <= 0 {
		chunkBytes = len(pcm)
	}
	for len(pcm) > 0 {
		n := min(chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[:n]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
		pcm = pcm[n:]
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// readFinals collects final transcripts until Deepgram sends its Metadata
// summary or closes the connection normally.
func readFinals(ctx context.Context, conn *websocket.Conn) ([]string, error) {
	var finals []string
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return finals, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		r, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}
		switch r.Type {
		case "Metadata":
			return finals, nil
		case "Error":
			return nil, fmt.Errorf("deepgram: server error: %w", errors.New(r.Description))
		}
		if r.IsFinal && r.Text != "" {
			finals = append(finals, r.Text)
		}
	}
}

// ---- wire format ----

// deepgramResponse is the JSON structure of a Deepgram streaming message.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is the subset of a message Transcribe acts on.
type result struct {
	Type        string
	Text        string
	IsFinal     bool
	Confidence  float64
	Description string
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message. Returns
// (result, true) for Results, Metadata and Error messages, or (zero, false)
// if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(bytes.TrimSpace(data), &resp); err != nil {
		return result{}, false
	}
	switch resp.Type {
	case "Metadata":
		return result{Type: resp.Type}, true
	case "Error":
		return result{Type: resp.Type, Description: resp.Description}, true
	case "Results":
	default:
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	return result{
		Type:       resp.Type,
		Text:       strings.TrimSpace(alt.Transcript),
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
