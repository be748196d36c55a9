// Package liberr provides the structured error type returned by every
// primary-path operation in the library engine (Stacks, Library, Desk):
// a stable machine-readable code, a kind, a message, optional details,
// and a wrapped cause. Kinds cover config-validation,
// embedding-failure, provider-unavailable, provider-timeout,
// provider-http, memory-not-initialized, memory-empty-text,
// memory-no-text-generator, memory-summarize-too-few,
// memory-entry-not-found, memory-duplicate-rejected,
// memory-learning-disabled, storage-io, storage-corruption,
// topic-unknown, template-missing-variable, retry-exhausted,
// retry-aborted, operation-timeout, and circuit-breaker-open.
package liberr

import "fmt"

// Kind enumerates the machine-readable error kinds defined by the engine's
// error-handling design.
type Kind string

const (
	KindConfigValidation        Kind = "config-validation"
	KindEmbeddingFailure        Kind = "embedding-failure"
	KindProviderUnavailable     Kind = "provider-unavailable"
	KindProviderTimeout         Kind = "provider-timeout"
	KindProviderHTTP            Kind = "provider-http"
	KindMemoryNotInitialized    Kind = "memory-not-initialized"
	KindMemoryEmptyText         Kind = "memory-empty-text"
	KindMemoryNoTextGenerator   Kind = "memory-no-text-generator"
	KindMemorySummarizeTooFew   Kind = "memory-summarize-too-few"
	KindMemoryEntryNotFound     Kind = "memory-entry-not-found"
	KindMemoryDuplicateRejected Kind = "memory-duplicate-rejected"
	KindMemoryLearningDisabled  Kind = "memory-learning-disabled"
	KindStorageIO               Kind = "storage-io"
	KindStorageCorruption       Kind = "storage-corruption"
	KindTopicUnknown            Kind = "topic-unknown"
	KindTemplateMissingVariable Kind = "template-missing-variable"
	KindRetryExhausted          Kind = "retry-exhausted"
	KindRetryAborted            Kind = "retry-aborted"
	KindOperationTimeout        Kind = "operation-timeout"
	KindCircuitBreakerOpen      Kind = "circuit-breaker-open"
	KindInvalidPattern          Kind = "invalid-pattern"
	KindInvalidQuery            Kind = "invalid-query"
	KindDimensionMismatch       Kind = "dimension-mismatch"
	KindLibraryDisposed         Kind = "library-disposed"
	KindInternal                Kind = "internal"
)

// LibraryError is the structured error type returned by every primary-path
// operation. It carries a machine-readable Kind/Code, an optional cause
// chain, and free-form Details for callers that want to render rich
// diagnostics without parsing the message string.
type LibraryError struct {
	// Code is a stable machine-readable code, e.g. "ERR_411_DIMENSION_MISMATCH".
	Code string

	// Kind classifies the error per the engine's error-handling design.
	Kind Kind

	// Message is the human-readable description.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error

	// Retryable indicates whether the operation may be retried as-is.
	Retryable bool
}

// Error implements the error interface.
func (e *LibraryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chain support.
func (e *LibraryError) Unwrap() error {
	return e.Cause
}

// Is enables errors.Is(err, target) to match by Kind, so callers can check
// `errors.Is(err, &liberr.LibraryError{Kind: liberr.KindTopicUnknown})`.
func (e *LibraryError) Is(target error) bool {
	t, ok := target.(*LibraryError)
	if !ok {
		return false
	}
	if t.Kind != "" {
		return e.Kind == t.Kind
	}
	return e.Code == t.Code
}

// WithDetail adds a key-value detail and returns the error for chaining.
func (e *LibraryError) WithDetail(key, value string) *LibraryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a LibraryError of the given kind.
func New(kind Kind, code, message string, cause error) *LibraryError {
	return &LibraryError{
		Code:      code,
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: retryableKind(kind),
	}
}

// Wrap creates a LibraryError from an existing error, or returns nil if err
// is nil (so callers can write `return liberr.Wrap(...)` unconditionally).
func Wrap(kind Kind, code string, err error) *LibraryError {
	if err == nil {
		return nil
	}
	return New(kind, code, err.Error(), err)
}

func retryableKind(k Kind) bool {
	switch k {
	case KindProviderUnavailable, KindProviderTimeout, KindRetryExhausted, KindOperationTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a *LibraryError with Retryable set.
func IsRetryable(err error) bool {
	if le, ok := err.(*LibraryError); ok {
		return le.Retryable
	}
	return false
}

// Of extracts the Kind of err, or "" if err is not a *LibraryError.
func Of(err error) Kind {
	if le, ok := err.(*LibraryError); ok {
		return le.Kind
	}
	return ""
}
