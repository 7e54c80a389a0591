package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/earshot/internal/health"
	"github.com/MrWong99/earshot/internal/observe"
	"github.com/MrWong99/earshot/internal/recorder"
	"github.com/MrWong99/earshot/pkg/audio"
	"github.com/MrWong99/earshot/pkg/history"
	"github.com/MrWong99/earshot/pkg/provider/tts"
)

// MessageNoSpeech is the body message for sessions that heard nothing.
const MessageNoSpeech = "No speech detected"

// maxUploadBytes bounds POST /transcribe uploads.
const maxUploadBytes = 32 << 20

type listenResponse struct {
	Transcript      string  `json:"transcript,omitempty"`
	Message         string  `json:"message,omitempty"`
	SessionID       string  `json:"session_id,omitempty"`
	Frames          int     `json:"frames"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	StopReason      string  `json:"stop_reason,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

type ttsRequest struct {
	Text string `json:"text"`
}

type sessionResponse struct {
	Active    bool       `json:"active"`
	SessionID string     `json:"session_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// Handler returns the HTTP surface wrapped in tracing and request logging.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /listen", a.handleListen)
	mux.HandleFunc("POST /transcribe", a.handleTranscribe)
	mux.HandleFunc("POST /tts", a.handleTTS)
	mux.HandleFunc("GET /voices", a.handleVoices)
	mux.HandleFunc("GET /session", a.handleSession)
	mux.HandleFunc("GET /history", a.handleHistory)
	health.New(a.checkers...).Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics, a.logger)(mux)
}

func (a *App) handleListen(w http.ResponseWriter, r *http.Request) {
	log := observe.Enrich(r.Context(), a.logger)

	res, err := a.Listen(r.Context(), r.RemoteAddr)
	switch {
	case errors.Is(err, ErrSessionActive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, ErrTranscription):
		log.Error("transcription failed", "session_id", res.SessionID, "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), SessionID: res.SessionID})
		return
	case err != nil:
		log.Error("listen failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	if de, ok := res.Result.(recorder.DeviceError); ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: de.Error(), SessionID: res.SessionID})
		return
	}

	body := listenResponse{
		SessionID:  res.SessionID,
		Frames:     res.Stats.Buffered,
		StopReason: recorder.ReasonOf(res.Result).String(),
	}
	if res.Heard() {
		c := res.Result.(recorder.Captured)
		body.Transcript = res.Transcript
		body.DurationSeconds = c.Duration.Seconds()
	} else {
		body.Message = MessageNoSpeech
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *App) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("audio_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No audio file provided"})
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to read audio file"})
		return
	}
	if _, _, err := audio.DecodeWAV(wav); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	text, err := a.Transcribe(r.Context(), wav)
	if err != nil {
		observe.Enrich(r.Context(), a.logger).Error("transcription failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if utf8.RuneCountInString(text) < minTranscriptLen {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to transcribe audio"})
		return
	}
	writeJSON(w, http.StatusOK, listenResponse{Transcript: text})
}

func (a *App) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
		return
	}

	clip, err := a.Speak(r.Context(), req.Text)
	switch {
	case errors.Is(err, tts.ErrEmptyText):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "No text provided"})
		return
	case errors.Is(err, ErrTTSNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		observe.Enrich(r.Context(), a.logger).Error("speech synthesis failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	mt := clip.MediaType
	if mt == "" {
		mt = tts.MediaTypeMPEG
	}
	w.Header().Set("Content-Type", mt)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}

func (a *App) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := a.Voices(r.Context())
	switch {
	case errors.Is(err, ErrTTSNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voices)
}

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	info, active := a.gate.Info()
	body := sessionResponse{Active: active}
	if active {
		body.SessionID = info.SessionID
		body.StartedAt = &info.StartedAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := history.Query{
		Text:    params.Get("q"),
		Outcome: params.Get("outcome"),
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		q.Limit = n
	}
	if v := params.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be an RFC 3339 timestamp"})
			return
		}
		q.After = ts
	}

	entries, err := a.History(r.Context(), q)
	if err != nil {
		observe.Enrich(r.Context(), a.logger).Error("history query failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
