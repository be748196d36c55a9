// Package testsupport collects hand-written test doubles shared across
// package tests: an in-memory storage backend and scriptable capability
// providers, in the style of the mock doubles under internal/embed and
// pkg/searcher in the upstream codebase this module is patterned on (no
// mocking framework, just small structs implementing the real interfaces).
package testsupport

import (
	"sync"

	"github.com/patronlib/librarystack/internal/storage"
)

// MemoryBackend is a storage.Backend that keeps its snapshot in memory,
// for tests that need load/save round-trips without touching disk.
type MemoryBackend struct {
	mu        sync.Mutex
	snapshot  map[string][]byte
	saveCalls int
	loadCalls int
	closed    bool
	SaveErr   error
	LoadErr   error
}

var _ storage.Backend = (*MemoryBackend)(nil)

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{snapshot: make(map[string][]byte)}
}

func (b *MemoryBackend) Load() (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loadCalls++
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	out := make(map[string][]byte, len(b.snapshot))
	for k, v := range b.snapshot {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}

func (b *MemoryBackend) Save(snapshot map[string][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saveCalls++
	if b.SaveErr != nil {
		return b.SaveErr
	}
	if b.snapshot == nil {
		b.snapshot = make(map[string][]byte, len(snapshot))
	}
	for k, v := range snapshot {
		b.snapshot[k] = append([]byte(nil), v...)
	}
	return nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// SaveCalls reports how many times Save has been invoked.
func (b *MemoryBackend) SaveCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saveCalls
}

// Closed reports whether Close has been called.
func (b *MemoryBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
