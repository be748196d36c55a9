// Package texttoken implements the lowercasing, tokenization, and
// similarity-scoring modes (substring, fuzzy, exact, regex,
// tokenOverlap) shared by text search and topic canonicalization. The
// edit distance is a plain dynamic-programming implementation, kept in
// this one package rather than duplicated across bm25index and
// topiccatalog.
package texttoken

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/patronlib/librarystack/pkg/liberr"
)

// MaxPatternLength is the longest regex pattern textSearch will compile.
const MaxPatternLength = 256

// Lowercase performs a simple Unicode casefold, matching the tokenizer's
// notion of "lowercasing" used before every comparison mode.
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Tokenize splits s on any rune that is not a letter or digit (treating
// '_' as a split point as well), discarding empty tokens, after
// lowercasing.
func Tokenize(s string) []string {
	lower := Lowercase(s)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		if r == '_' {
			return true
		}
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return tokens
}

// Mode selects a text-matching scoring strategy. Every mode's Score
// returns a value in [0,1].
type Mode string

const (
	ModeSubstring     Mode = "substring"
	ModeFuzzy         Mode = "fuzzy"
	ModeExact         Mode = "exact"
	ModeRegex         Mode = "regex"
	ModeTokenOverlap  Mode = "tokenOverlap"
	ModeBM25          Mode = "bm25"
	defaultFuzzyThres      = 0.3
)

// Score evaluates query against doc under the given mode and returns a
// value in [0,1]. ModeBM25 is not handled here; callers route bm25
// scoring through internal/bm25index instead.
func Score(mode Mode, query, doc string) (float64, error) {
	switch mode {
	case ModeSubstring:
		return scoreSubstring(query, doc), nil
	case ModeFuzzy:
		return scoreFuzzy(query, doc), nil
	case ModeExact:
		return scoreExact(query, doc), nil
	case ModeRegex:
		return scoreRegex(query, doc)
	case ModeTokenOverlap:
		return scoreTokenOverlap(query, doc), nil
	default:
		return scoreSubstring(query, doc), nil
	}
}

func scoreSubstring(query, doc string) float64 {
	if query == "" {
		return 0
	}
	if strings.Contains(Lowercase(doc), Lowercase(query)) {
		return 1
	}
	return 0
}

func scoreExact(query, doc string) float64 {
	q := Lowercase(query)
	for _, tok := range Tokenize(doc) {
		if tok == q {
			return 1
		}
	}
	return 0
}

// scoreFuzzy returns the best per-token fuzzy similarity of query against
// doc's tokens, defaulting the match-worthy threshold to 0.3 — callers
// that need to gate on the threshold compare the returned score
// themselves, since Score always just reports the raw value.
func scoreFuzzy(query, doc string) float64 {
	q := Lowercase(query)
	if q == "" {
		return 0
	}
	best := 0.0
	for _, tok := range Tokenize(doc) {
		sim := Similarity(q, tok)
		if sim > best {
			best = sim
		}
	}
	return best
}

func scoreRegex(query, doc string) (float64, error) {
	if len(query) > MaxPatternLength {
		return 0, liberr.New(liberr.KindInvalidPattern, liberr.CodeInvalidPattern,
			"regex pattern exceeds maximum length", nil).
			WithDetail("maxLength", "256")
	}
	re, err := regexp.Compile(query)
	if err != nil {
		return 0, liberr.New(liberr.KindInvalidPattern, liberr.CodeInvalidPattern,
			"invalid regex pattern", err)
	}
	if re.MatchString(doc) {
		return 1, nil
	}
	return 0, nil
}

func scoreTokenOverlap(query, doc string) float64 {
	qTokens := Tokenize(query)
	if len(qTokens) == 0 {
		return 0
	}
	docSet := make(map[string]struct{}, len(qTokens))
	for _, tok := range Tokenize(doc) {
		docSet[tok] = struct{}{}
	}
	qSet := make(map[string]struct{}, len(qTokens))
	for _, tok := range qTokens {
		qSet[tok] = struct{}{}
	}
	matches := 0
	for tok := range qSet {
		if _, ok := docSet[tok]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(qSet))
}

// DefaultFuzzyThreshold is the score below which a fuzzy match is not
// considered a hit.
func DefaultFuzzyThreshold() float64 { return defaultFuzzyThres }

// Similarity returns 1 - Levenshtein(a,b)/max(len(a),len(b)) as runes,
// in [0,1]. Two empty strings are identical (similarity 1).
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	dist := levenshtein(ra, rb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

// levenshtein computes the edit distance between two rune slices using
// the classic two-row dynamic-programming table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			deletion := prev[j] + 1
			insertion := curr[j-1] + 1
			substitution := prev[j-1] + cost
			curr[j] = minInt(deletion, minInt(insertion, substitution))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
