// Package phonetic matches misheard words against a fixed vocabulary using
// Double Metaphone codes and Jaro-Winkler similarity.
//
// A term sounds like the input when every input word shares a Double
// Metaphone code with the term word at the same position. Such terms are
// ranked by Jaro-Winkler similarity and accepted above the phonetic
// threshold. When no term sounds alike, pure string similarity is accepted
// above the stricter fuzzy threshold.
//
// Multi-word terms ("Prometheus operator") are compared word by word and
// scored by the mean similarity of aligned words.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a term that
// sounds like the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that
// does not sound like the input. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the default thresholds unless overridden.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is a vocabulary entry with its codes computed once.
type term struct {
	text   string
	tokens []string
	codes  []map[string]struct{}
}

// Vocabulary is a prepared list of terms. Build it with [Prepare] and reuse
// it across many Match calls.
type Vocabulary struct {
	terms    []term
	maxWords int
}

// Prepare computes the phonetic codes for every non-blank term.
func Prepare(terms []string) *Vocabulary {
	v := &Vocabulary{terms: make([]term, 0, len(terms))}
	for _, t := range terms {
		lower := strings.ToLower(strings.TrimSpace(t))
		if lower == "" {
			continue
		}
		tokens := strings.Fields(lower)
		v.terms = append(v.terms, term{
			text:   strings.TrimSpace(t),
			tokens: tokens,
			codes:  codesFor(tokens),
		})
		if len(tokens) > v.maxWords {
			v.maxWords = len(tokens)
		}
	}
	return v
}

// Len returns the number of usable terms.
func (v *Vocabulary) Len() int { return len(v.terms) }

// MaxWords returns the word count of the longest term, or 0 when empty.
func (v *Vocabulary) MaxWords() int { return v.maxWords }

// Match returns the vocabulary term closest to word, which may be a single
// word or a space-separated phrase. Only terms with the same word count as
// word are considered. When matched is false, corrected equals word and
// confidence is 0.
func (m *Matcher) Match(word string, vocab *Vocabulary) (corrected string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(word))
	if vocab == nil || len(vocab.terms) == 0 || lower == "" {
		return word, 0, false
	}
	tokens := strings.Fields(lower)
	codes := codesFor(tokens)

	var (
		best       string
		bestScore  float64
		bestSounds bool
	)
	for _, t := range vocab.terms {
		if len(t.tokens) != len(tokens) {
			continue
		}
		sounds := soundsAlike(codes, t.codes)
		score := similarity(tokens, t.tokens)
		switch {
		case sounds && score >= m.phoneticThreshold:
			if !bestSounds || score > bestScore {
				best, bestScore, bestSounds = t.text, score, true
			}
		case !sounds && !bestSounds && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = t.text, score
		}
	}
	if best == "" {
		return word, 0, false
	}
	return best, bestScore, true
}

// codesFor returns the non-empty Double Metaphone codes of each token.
func codesFor(tokens []string) []map[string]struct{} {
	out := make([]map[string]struct{}, len(tokens))
	for i, t := range tokens {
		codes := make(map[string]struct{}, 2)
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
		out[i] = codes
	}
	return out
}

// soundsAlike reports whether every aligned pair of words shares a code.
func soundsAlike(a, b []map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !overlap(a[i], b[i]) {
			return false
		}
	}
	return true
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the mean Jaro-Winkler score of aligned words.
func similarity(in, term []string) float64 {
	if len(in) == 0 || len(in) != len(term) {
		return 0
	}
	var sum float64
	for i := range in {
		sum += matchr.JaroWinkler(in[i], term[i], false)
	}
	return sum / float64(len(in))
}
