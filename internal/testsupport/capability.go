package testsupport

import (
	"context"
	"sync/atomic"

	"github.com/patronlib/librarystack/pkg/capability"
)

// StubEmbedder is a scriptable capability.EmbeddingProvider: it returns a
// fixed-dimension deterministic vector per call, or a configured error.
type StubEmbedder struct {
	Dimension int
	Err       error
	Calls     atomic.Int64
}

var _ capability.EmbeddingProvider = (*StubEmbedder)(nil)

func NewStubEmbedder(dimension int) *StubEmbedder {
	return &StubEmbedder{Dimension: dimension}
}

func (s *StubEmbedder) Embed(ctx context.Context, texts []string, modelHint string) (capability.EmbeddingResult, error) {
	s.Calls.Add(1)
	if s.Err != nil {
		return capability.EmbeddingResult{}, s.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text, s.Dimension)
	}
	return capability.EmbeddingResult{Embeddings: out}, nil
}

// deterministicVector derives a stable pseudo-embedding from text so
// tests can assert on similarity relationships without a real model.
func deterministicVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	if dim == 0 {
		return v
	}
	var seed uint32 = 2166136261
	for i := 0; i < len(text); i++ {
		seed = (seed ^ uint32(text[i])) * 16777619
	}
	for i := range v {
		seed = seed*1664525 + 1013904223
		v[i] = float32(seed%1000) / 1000.0
	}
	return v
}

// StubGenerator is a scriptable capability.TextGenerationProvider: it
// returns GenerateFn's output when set, else the configured Response,
// for Generate; GenerateWithModel returns ModelErr when set and
// otherwise behaves like Generate.
type StubGenerator struct {
	Response   string
	Err        error
	ModelErr   error
	GenerateFn func(prompt, systemPrompt string) string
	Calls      atomic.Int64
}

var _ capability.TextGenerationProvider = (*StubGenerator)(nil)

func NewStubGenerator(response string) *StubGenerator {
	return &StubGenerator{Response: response}
}

func (s *StubGenerator) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	s.Calls.Add(1)
	if s.Err != nil {
		return "", s.Err
	}
	if s.GenerateFn != nil {
		return s.GenerateFn(prompt, systemPrompt), nil
	}
	return s.Response, nil
}

func (s *StubGenerator) GenerateWithModel(ctx context.Context, prompt, modelID, systemPrompt string) (string, error) {
	if s.ModelErr != nil {
		return "", s.ModelErr
	}
	return s.Generate(ctx, prompt, systemPrompt)
}
