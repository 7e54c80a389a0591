package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0). Binary
	// detectors report 0 or 1.
	Probability float64
}

// IsSpeech reports whether the frame was classified as speech.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeech
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSilence indicates no speech detected.
	VADSilence VADEventType = iota

	// VADSpeech indicates the frame contains speech.
	VADSpeech
)

// String returns the human-readable name of the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSilence:
		return "silence"
	case VADSpeech:
		return "speech"
	default:
		return "unknown"
	}
}

// Speech and Silence are the two possible results of a binary detector.
var (
	Speech  = VADEvent{Type: VADSpeech, Probability: 1}
	Silence = VADEvent{Type: VADSilence, Probability: 0}
)
