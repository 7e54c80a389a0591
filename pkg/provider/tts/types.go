package tts

// Media types produced by the bundled providers.
const (
	MediaTypeMPEG = "audio/mpeg"
	MediaTypeWAV  = "audio/wav"
)

// Voice describes a TTS voice.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name,omitempty"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Audio is one synthesised clip.
type Audio struct {
	// Data is the encoded clip (MP3, WAV, ...).
	Data []byte

	// MediaType is the MIME type of Data, e.g. [MediaTypeMPEG].
	MediaType string
}
