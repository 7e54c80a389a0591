package stt

// DefaultLanguage is the language hint used when none is configured.
const DefaultLanguage = "en"

// Options carries per-request recognition hints.
type Options struct {
	// Language is an ISO-639-1 code (e.g. "en"). Empty lets the provider
	// auto-detect, if supported.
	Language string

	// Temperature is the sampling temperature. 0 asks for the most
	// deterministic output the provider offers.
	Temperature float64

	// Prompt is optional context that guides spelling and style.
	Prompt string
}

// DefaultOptions returns English with temperature 0.
func DefaultOptions() Options {
	return Options{Language: DefaultLanguage}
}

// WithDefaults fills empty fields of o from def.
func (o Options) WithDefaults(def Options) Options {
	if o.Language == "" {
		o.Language = def.Language
	}
	if o.Prompt == "" {
		o.Prompt = def.Prompt
	}
	if o.Temperature == 0 {
		o.Temperature = def.Temperature
	}
	return o
}
