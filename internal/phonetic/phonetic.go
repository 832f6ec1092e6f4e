// Package phonetic matches spoken or misspelled names against the roster of
// known entities: agent names in group conversations ("hey Garet" still
// addresses Garrett) and place or faction names in corrected transcripts.
//
// Matching runs in two stages. Double Metaphone codes are computed for every
// token of the input and of each candidate; any code overlap makes the
// candidate a phonetic hit. Phonetic hits are then ranked by Jaro-Winkler
// similarity on the original strings and accepted above the phonetic
// threshold. When nothing overlaps phonetically, a stricter pure
// Jaro-Winkler pass catches plain misspellings.
//
// Multi-word names are supported end to end: codes are built per token and
// similarity takes the best of full-string, concatenated and pairwise token
// comparisons.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultPhoneticThreshold is the minimum Jaro-Winkler score for a
	// candidate that already overlaps phonetically.
	DefaultPhoneticThreshold = 0.70

	// DefaultFuzzyThreshold is the minimum Jaro-Winkler score when no
	// candidate overlaps phonetically.
	DefaultFuzzyThreshold = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold overrides [DefaultPhoneticThreshold].
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold overrides [DefaultFuzzyThreshold].
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher ranks candidate names against input words. Read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] with the supplied options applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: DefaultPhoneticThreshold,
		fuzzyThreshold:    DefaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the candidate most phonetically similar to word. word may be a
// single token or a space-separated phrase. When matched is false, corrected
// equals word unchanged and confidence is 0.
func (m *Matcher) Match(word string, candidates []string) (corrected string, confidence float64, matched bool) {
	if len(candidates) == 0 || strings.TrimSpace(word) == "" {
		return word, 0, false
	}

	wordLower := strings.ToLower(strings.TrimSpace(word))
	wordTokens := strings.Fields(wordLower)
	inputCodes := codesForTokens(wordTokens)

	type hit struct {
		name     string
		score    float64
		phonetic bool
	}
	var best hit

	for _, cand := range candidates {
		candLower := strings.ToLower(strings.TrimSpace(cand))
		if candLower == "" {
			continue
		}
		candTokens := strings.Fields(candLower)

		phonetic := codesOverlap(inputCodes, codesForTokens(candTokens))
		score := bestSimilarity(wordTokens, candTokens, wordLower, candLower)

		if phonetic {
			if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = hit{name: cand, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
			best = hit{name: cand, score: score}
		}
	}

	if best.name != "" {
		return best.name, best.score, true
	}
	return word, 0, false
}

// MatchInText scans free text for the best-matching candidate name. Every
// token and adjacent token pair of length ≥ 3 is tried, so both "talk to
// garet" and "ask vera stone" resolve. Exact containment wins immediately;
// otherwise the highest-confidence phonetic match across all fragments is
// returned.
func (m *Matcher) MatchInText(text string, candidates []string) (name string, confidence float64, matched bool) {
	if len(candidates) == 0 || strings.TrimSpace(text) == "" {
		return "", 0, false
	}

	lower := strings.ToLower(text)
	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(cand)) {
			return cand, 1, true
		}
	}

	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !isWordRune(r)
	})

	var (
		bestName  string
		bestScore float64
	)
	try := func(fragment string) {
		if len(fragment) < 3 {
			return
		}
		if cand, score, ok := m.Match(fragment, candidates); ok && score > bestScore {
			bestName, bestScore = cand, score
		}
	}
	for i, tok := range tokens {
		try(tok)
		if i+1 < len(tokens) {
			try(tok + " " + tokens[i+1])
		}
	}

	if bestName == "" {
		return "", 0, false
	}
	return bestName, bestScore, true
}

func isWordRune(r rune) bool {
	return r == '\'' || r == '-' ||
		('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')
}

// codesForTokens returns the union of Double Metaphone codes for the tokens.
// Tokens too short to produce a code contribute nothing.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity is the highest Jaro-Winkler score across three comparisons:
// the full strings, the space-stripped strings, and the best token pair.
// The last handles one spoken word landing on one word of a longer name.
func bestSimilarity(inputTokens, candTokens []string, inputFull, candFull string) float64 {
	score := matchr.JaroWinkler(inputFull, candFull, false)

	if len(inputTokens) > 1 || len(candTokens) > 1 {
		joined := matchr.JaroWinkler(strings.Join(inputTokens, ""), strings.Join(candTokens, ""), false)
		if joined > score {
			score = joined
		}
	}

	for _, it := range inputTokens {
		for _, ct := range candTokens {
			if s := matchr.JaroWinkler(it, ct, false); s > score {
				score = s
			}
		}
	}
	return score
}
