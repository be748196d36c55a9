package librarian

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry holds a set of managed Librarians plus a default one and
// resolves which librarian should handle a piece of content via
// confidence-weighted bidding. Registry operations are side-effect free
// except SpawnSpecialist and Register/Unregister.
type Registry struct {
	logger *slog.Logger

	mu          sync.RWMutex
	librarians  map[string]*Librarian
	order       []string
	defaultName string
}

// NewRegistry creates a Registry with defaultLibrarian registered and
// marked as the fallback when no bid is confident enough (or none is
// cast at all).
func NewRegistry(defaultLibrarian *Librarian, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Registry{
		logger:     logger,
		librarians: make(map[string]*Librarian),
	}
	if defaultLibrarian != nil {
		r.register(defaultLibrarian)
		r.defaultName = defaultLibrarian.Name()
	}
	return r
}

// Register adds lib to the managed set (or replaces an existing
// librarian of the same name).
func (r *Registry) Register(lib *Librarian) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(lib)
}

func (r *Registry) register(lib *Librarian) {
	if _, exists := r.librarians[lib.Name()]; !exists {
		r.order = append(r.order, lib.Name())
	}
	r.librarians[lib.Name()] = lib
}

// Unregister removes a librarian by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.librarians, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Default returns the registry's default librarian, or nil if none was
// configured.
func (r *Registry) Default() *Librarian {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.librarians[r.defaultName]
}

// ResolveLibrarian polls every managed librarian for a bid in parallel
// and picks the highest confidence, ties broken by explicit topic
// permission then registration order. A librarian whose Bid call errors
// is treated as abstaining (confidence 0) rather than failing the whole
// resolution. Falls back to the default librarian if no bid is cast.
func (r *Registry) ResolveLibrarian(ctx context.Context, content, topic string, view LibraryView) (*Librarian, error) {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	librarians := make(map[string]*Librarian, len(r.librarians))
	for k, v := range r.librarians {
		librarians[k] = v
	}
	r.mu.RUnlock()

	if len(names) == 0 {
		return nil, fmt.Errorf("librarian registry: no librarians registered")
	}

	bids := make([]Bid, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, lib := i, librarians[name]
		g.Go(func() error {
			bid, err := lib.Bid(gctx, content, topic, view)
			if err != nil {
				r.logger.Warn("librarian: bid failed, treating as abstention", slog.String("librarian", lib.Name()), slog.Any("error", err))
				bid = Bid{Name: lib.Name(), Confidence: 0}
			}
			bids[i] = bid
			return nil
		})
	}
	_ = g.Wait()

	bestIdx := -1
	for i, name := range names {
		if bestIdx == -1 {
			bestIdx = i
			continue
		}
		if isBetterBid(bids[i], librarians[name], topic, bids[bestIdx], librarians[names[bestIdx]], i, bestIdx) {
			bestIdx = i
		}
	}

	if bestIdx == -1 || bids[bestIdx].Confidence <= 0 {
		if def := r.Default(); def != nil {
			return def, nil
		}
	}
	return librarians[names[bestIdx]], nil
}

func isBetterBid(candidate Bid, candidateLib *Librarian, topic string, current Bid, currentLib *Librarian, candidateOrder, currentOrder int) bool {
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence
	}
	candidateHasTopic := candidateLib.Identity().HasTopic(topic)
	currentHasTopic := currentLib.Identity().HasTopic(topic)
	if candidateHasTopic != currentHasTopic {
		return candidateHasTopic
	}
	return candidateOrder < currentOrder
}

// SpawnSpecialist instantiates and registers a new Librarian derived
// from parent's identity (same provider capability, a new name, and a
// narrower topic scope), for the Circulation Desk's complexity-driven
// escalation.
func (r *Registry) SpawnSpecialist(parent *Librarian, name string, topics []string) *Librarian {
	identity := Identity{
		Name:        name,
		Purpose:     parent.identity.Purpose,
		Topics:      topics,
		Permissions: parent.identity.Permissions,
		Thresholds:  parent.identity.Thresholds,
	}
	specialist := New(identity, parent.provider, r.logger)
	r.Register(specialist)
	return specialist
}
