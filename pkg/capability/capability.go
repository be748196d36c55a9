// Package capability defines the two external collaborator interfaces
// the engine depends on: an embedding provider and a text-generation
// provider. Host programs implement these against whatever local or
// remote model they run (ONNX, HTTP TEI, a remote RPC, an LLM API); the
// engine never imports a concrete provider.
package capability

import "context"

// EmbeddingResult is the output of an embedding call: one dense vector
// per input text, in the same order.
type EmbeddingResult struct {
	Embeddings [][]float32
}

// EmbeddingProvider turns text into dense vectors. modelHint is an
// optional model identifier; providers that serve a single model ignore
// it.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string, modelHint string) (EmbeddingResult, error)
}

// TextGenerationProvider is the capability consumed by the Librarian:
// a single-shot prompt/response round trip against an external
// text-generation model.
type TextGenerationProvider interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)

	// GenerateWithModel is an optional capability; providers that cannot
	// route to a specific model return liberr.KindProviderUnavailable.
	GenerateWithModel(ctx context.Context, prompt, modelID, systemPrompt string) (string, error)
}

// Error wraps a capability-layer failure with a Transient/Permanent
// classification the engine's retry logic consults.
type Error struct {
	Cause     error
	Transient bool
}

func (e *Error) Error() string {
	return e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Classify reports whether this error should be treated as transient
// (worth retrying) by the engine's resilience layer.
func (e *Error) Classify() bool {
	return e.Transient
}

// NewTransientError wraps cause as a retryable capability failure.
func NewTransientError(cause error) *Error {
	return &Error{Cause: cause, Transient: true}
}

// NewPermanentError wraps cause as a non-retryable capability failure.
func NewPermanentError(cause error) *Error {
	return &Error{Cause: cause, Transient: false}
}
