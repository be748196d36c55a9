// Package staticembed is a zero-dependency, offline EmbeddingProvider:
// a deterministic hash-based embedder that needs no model download or
// network access, at the cost of reduced semantic quality. It exists so
// cmd/librarycli and the engine's own tests can run end-to-end without
// a live embedding backend.
package staticembed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/patronlib/librarystack/pkg/capability"
)

// Dimensions is the fixed size of every vector this provider produces.
const Dimensions = 256

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// Provider is a capability.EmbeddingProvider backed by hashed
// token/n-gram features, normalized to unit length.
type Provider struct {
	mu     sync.RWMutex
	closed bool
}

// New constructs a ready-to-use static embedding provider.
func New() *Provider { return &Provider{} }

// Embed implements capability.EmbeddingProvider. modelHint is ignored:
// this provider serves exactly one model.
func (p *Provider) Embed(_ context.Context, texts []string, _ string) (capability.EmbeddingResult, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return capability.EmbeddingResult{}, capability.NewPermanentError(errClosed{})
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedOne(text)
	}
	return capability.EmbeddingResult{Embeddings: out}, nil
}

// Close marks the provider unavailable for further embedding calls.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

type errClosed struct{}

func (errClosed) Error() string { return "staticembed: provider is closed" }

func embedOne(text string) []float32 {
	vector := make([]float32, Dimensions)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector
	}

	for _, token := range tokenize(trimmed) {
		vector[hashToIndex(token)] += tokenWeight
	}
	for _, ngram := range extractNgrams(normalizeForNgrams(trimmed), ngramSize) {
		vector[hashToIndex(ngram)] += ngramWeight
	}

	return normalize(vector)
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCodeToken(word) {
			if lower := strings.ToLower(t); lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return nil
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}

func hashToIndex(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(Dimensions))
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	mag := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * mag
	}
	return out
}
