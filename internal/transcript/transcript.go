// Package transcript post-processes speech-to-text output.
//
// Providers routinely mishear project-specific vocabulary: product names,
// hostnames, jargon. A [Corrector] walks the transcript with word windows as
// long as the longest vocabulary term and replaces every window that a
// [phonetic.Matcher] aligns with a term. Punctuation around the window is
// preserved. Each substitution is reported as a [Correction] so callers can
// log or display it.
package transcript

import (
	"strings"
	"unicode"

	"github.com/MrWong99/earshot/internal/transcript/phonetic"
)

// minWordLen is the shortest stripped window considered for correction.
const minWordLen = 3

// Correction captures a single substitution.
type Correction struct {
	// Original is the window as transcribed, without surrounding punctuation.
	Original string

	// Corrected is the vocabulary term that replaced it.
	Corrected string

	// Confidence is the Jaro-Winkler similarity of the match (0.0–1.0).
	Confidence float64
}

// Corrector replaces misheard vocabulary in transcripts. It is safe for
// concurrent use.
type Corrector struct {
	matcher *phonetic.Matcher
}

// NewCorrector returns a Corrector backed by m. A nil m uses phonetic.New().
func NewCorrector(m *phonetic.Matcher) *Corrector {
	if m == nil {
		m = phonetic.New()
	}
	return &Corrector{matcher: m}
}

// Correct returns text with every recognised term substituted and the list
// of substitutions in transcript order. Windows already spelled like the
// term are left untouched and not reported. Longer windows win over shorter
// ones at the same position. Whitespace is normalised to single spaces when
// at least one correction is made.
func (c *Corrector) Correct(text string, vocab *phonetic.Vocabulary) (string, []Correction) {
	if vocab == nil || vocab.Len() == 0 {
		return text, nil
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, nil
	}

	out := make([]string, 0, len(tokens))
	var corrections []Correction

	for i := 0; i < len(tokens); {
		n := min(vocab.MaxWords(), len(tokens)-i)
		consumed := 0
		for ; n >= 1; n-- {
			lead, core, trail, ok := window(tokens[i : i+n])
			if !ok || len(core) < minWordLen {
				continue
			}
			term, conf, matched := c.matcher.Match(core, vocab)
			if !matched {
				continue
			}
			if term != core {
				corrections = append(corrections, Correction{Original: core, Corrected: term, Confidence: conf})
			}
			out = append(out, lead+term+trail)
			consumed = n
			break
		}
		if consumed == 0 {
			out = append(out, tokens[i])
			consumed = 1
		}
		i += consumed
	}

	if len(corrections) == 0 {
		return text, nil
	}
	return strings.Join(out, " "), corrections
}

// window strips leading punctuation from the first token and trailing
// punctuation from the last. It reports false when punctuation separates
// tokens inside the window, since that crosses a clause boundary.
func window(tokens []string) (lead, core, trail string, ok bool) {
	parts := make([]string, len(tokens))
	for j, tok := range tokens {
		l, c, t := splitPunct(tok)
		if c == "" {
			return "", "", "", false
		}
		if (j > 0 && l != "") || (j < len(tokens)-1 && t != "") {
			return "", "", "", false
		}
		if j == 0 {
			lead = l
		}
		if j == len(tokens)-1 {
			trail = t
		}
		parts[j] = c
	}
	return lead, strings.Join(parts, " "), trail, true
}

func splitPunct(tok string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(tok, unicode.IsPunct)
	lead = tok[:len(tok)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}
