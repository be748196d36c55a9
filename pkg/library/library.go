// Package library is the public facade: it adds embedding generation
// and prompt-enrichment around a Stacks instance, owns the storage
// backend and Circulation Desk, and is the sole entry point a host
// program imports.
package library

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/patronlib/librarystack/internal/desk"
	"github.com/patronlib/librarystack/internal/learning"
	"github.com/patronlib/librarystack/internal/metaindex"
	"github.com/patronlib/librarystack/internal/stacks"
	"github.com/patronlib/librarystack/internal/storage"
	"github.com/patronlib/librarystack/pkg/capability"
	"github.com/patronlib/librarystack/pkg/liberr"
	"github.com/patronlib/librarystack/pkg/librarian"
)

// Library is the top-level facade: an embedding provider wrapped around
// a Stacks instance, plus the Circulation Desk background pipeline.
type Library struct {
	cfg      Config
	embedder capability.EmbeddingProvider
	logger   *slog.Logger

	stacks  *stacks.Stacks
	backend storage.Backend
	desk    *desk.Desk

	registry *librarian.Registry
	defaultL *librarian.Librarian

	mu       sync.Mutex
	disposed bool
}

// New wires a Library from cfg: opens the configured storage backend,
// constructs and loads a Stacks instance, builds the default Librarian
// and Circulation Desk, and starts the Desk's worker goroutine.
func New(cfg Config, embedder capability.EmbeddingProvider, generator capability.TextGenerationProvider, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	backend, err := openBackend(cfg, logger)
	if err != nil {
		return nil, liberr.New(liberr.KindStorageIO, liberr.CodeStorageIO, "failed to open storage backend", err)
	}

	st := stacks.New(cfg.Store, backend, logger)
	if err := st.Load(); err != nil {
		return nil, liberr.New(liberr.KindStorageCorruption, liberr.CodeStorageCorruption, "failed to load stacks snapshot", err)
	}

	name := cfg.LibrarianName
	if name == "" {
		name = "default"
	}
	defaultL := librarian.New(librarian.Identity{Name: name, Purpose: cfg.LibrarianPurpose}, generator, logger)
	registry := librarian.NewRegistry(defaultL, logger)

	lib := &Library{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
		stacks:   st,
		backend:  backend,
		registry: registry,
		defaultL: defaultL,
	}
	lib.desk = desk.New(cfg.Desk, defaultL, registry, lib.deskCallbacks(), logger)
	return lib, nil
}

func openBackend(cfg Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.StorageKind {
	case StorageSQLite:
		return storage.NewSQLiteBackend(cfg.StorageDir)
	default:
		return storage.NewFileBackend(cfg.StorageDir, storage.WithLogger(logger))
	}
}

// deskCallbacks binds the Desk's capability callbacks to this Library's
// embedder and Stacks instance, keeping the Desk itself free of any
// pointer back to Library or Stacks.
func (l *Library) deskCallbacks() desk.Callbacks {
	return desk.Callbacks{
		Embed: func(ctx context.Context, text string) ([]float32, error) {
			return l.embedOne(ctx, text)
		},
		CheckDuplicate: func(embedding []float32) (bool, string) {
			res := l.stacks.CheckDuplicate(embedding)
			return res.IsDuplicate, res.VolumeID
		},
		AddVolume: func(text string, embedding []float32, metadata map[string]string) (string, error) {
			return l.stacks.Add(text, embedding, metadata)
		},
		DeleteVolume: l.stacks.Delete,
		RelocateVolume: func(id, newTopic string) error {
			return l.stacks.Relocate(id, newTopic)
		},
		VolumesByTopic: func(topic string) []desk.VolumeView {
			volumes := l.stacks.FilterByTopic([]string{topic})
			views := make([]desk.VolumeView, len(volumes))
			for i, v := range volumes {
				views[i] = desk.VolumeView{ID: v.ID, Text: v.Text, Metadata: v.Metadata, TimestampMs: v.TimestampMs}
			}
			return views
		},
		CountByTopic:      l.stacks.CountByTopic,
		TotalCount:        l.stacks.Count,
		MostPopulousTopic: l.stacks.MostPopulousTopic,
		EnsureTopic:       l.stacks.EnsureTopic,
		MergeTopic:        l.stacks.MergeTopics,
		SpawnSpecialist: func(topic string) {
			if topic == "" {
				return
			}
			name := l.defaultL.Name() + "-" + strings.ReplaceAll(topic, "/", "-")
			l.registry.SpawnSpecialist(l.defaultL, name, []string{topic})
		},
	}
}

// errIfDisposed returns a library-disposed error once Dispose has run:
// subsequent calls after Dispose fail rather than touching closed
// storage.
func (l *Library) errIfDisposed() error {
	l.mu.Lock()
	disposed := l.disposed
	l.mu.Unlock()
	if disposed {
		return liberr.New(liberr.KindLibraryDisposed, liberr.CodeLibraryDisposed, "library has been disposed", nil)
	}
	return nil
}

// Search embeds query and performs a plain cosine search. An
// empty/whitespace query returns an empty result without embedding; an
// embedding failure is fatal and propagates.
func (l *Library) Search(ctx context.Context, query string, k int, threshold float64) ([]stacks.ScoredVolume, error) {
	if err := l.errIfDisposed(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	embedding, err := l.embedOne(ctx, query)
	if err != nil {
		return nil, err
	}
	return l.stacks.Search(embedding, k, threshold), nil
}

// QuerySearch parses expr via the query DSL and runs it through
// AdvancedSearch.
func (l *Library) QuerySearch(ctx context.Context, expr string, maxResults int) ([]stacks.ScoredVolume, error) {
	parsed := ParseQuery(expr, l.logger)
	opts := parsed.ToAdvancedSearchOptions()
	opts.MaxResults = maxResults
	return l.AdvancedSearch(ctx, opts)
}

// AdvancedSearch embeds opts.Text into opts.QueryEmbedding when the
// latter is absent and the former is present; an embedding failure here
// is non-fatal and falls back to text/metadata-only ranking.
func (l *Library) AdvancedSearch(ctx context.Context, opts stacks.AdvancedSearchOptions) ([]stacks.ScoredVolume, error) {
	if err := l.errIfDisposed(); err != nil {
		return nil, err
	}
	if len(opts.QueryEmbedding) == 0 && strings.TrimSpace(opts.Text) != "" {
		embedding, err := l.embedOne(ctx, opts.Text)
		if err != nil {
			l.logger.Warn("library: embedding failed for advanced search, falling back to text/metadata", slog.Any("error", err))
		} else {
			opts.QueryEmbedding = embedding
		}
	}
	return l.stacks.AdvancedSearch(opts)
}

func (l *Library) embedOne(ctx context.Context, text string) ([]float32, error) {
	res, err := l.embedder.Embed(ctx, []string{text}, l.cfg.EmbeddingModelHint)
	if err != nil {
		return nil, liberr.New(liberr.KindEmbeddingFailure, liberr.CodeEmbeddingFailure, "embedding failed", err)
	}
	if len(res.Embeddings) == 0 {
		return nil, liberr.New(liberr.KindEmbeddingFailure, liberr.CodeEmbeddingFailure, "embedding provider returned no vectors", nil)
	}
	return res.Embeddings[0], nil
}

// Add embeds text and stores it with metadata.
func (l *Library) Add(ctx context.Context, text string, metadata map[string]string) (string, error) {
	if err := l.errIfDisposed(); err != nil {
		return "", err
	}
	embedding, err := l.embedOne(ctx, text)
	if err != nil {
		return "", err
	}
	return l.stacks.Add(text, embedding, metadata)
}

// AddBatch embeds every item's text in one provider call and stores
// them all. Validation is all-or-nothing: an empty text at index i
// rejects the whole batch with memory-empty-text carrying batchIndex=i
// before any embedding happens.
func (l *Library) AddBatch(ctx context.Context, items []BatchItem) ([]string, error) {
	if err := l.errIfDisposed(); err != nil {
		return nil, err
	}
	texts := make([]string, len(items))
	for i, item := range items {
		if item.Text == "" {
			return nil, liberr.New(liberr.KindMemoryEmptyText, liberr.CodeMemoryEmptyText,
				"volume text must not be empty", nil).WithDetail("batchIndex", strconv.Itoa(i))
		}
		texts[i] = item.Text
	}
	if len(items) == 0 {
		return nil, nil
	}

	res, err := l.embedder.Embed(ctx, texts, l.cfg.EmbeddingModelHint)
	if err != nil {
		return nil, liberr.New(liberr.KindEmbeddingFailure, liberr.CodeEmbeddingFailure, "embedding failed", err)
	}
	if len(res.Embeddings) != len(items) {
		return nil, liberr.New(liberr.KindEmbeddingFailure, liberr.CodeEmbeddingFailure,
			"embedding provider returned wrong vector count", nil).
			WithDetail("expected", strconv.Itoa(len(items))).
			WithDetail("actual", strconv.Itoa(len(res.Embeddings)))
	}

	batch := make([]stacks.AddItem, len(items))
	for i, item := range items {
		batch[i] = stacks.AddItem{Text: item.Text, Embedding: res.Embeddings[i], Metadata: item.Metadata}
	}
	return l.stacks.AddBatch(batch)
}

// BatchItem is one entry of an AddBatch call.
type BatchItem struct {
	Text     string
	Metadata map[string]string
}

// GetByID returns a defensive copy of the volume, or ok=false if
// unknown.
func (l *Library) GetByID(id string) (stacks.Volume, bool) { return l.stacks.GetByID(id) }

// Delete removes a volume by id.
func (l *Library) Delete(id string) bool { return l.stacks.Delete(id) }

// RecordFeedback forwards confirmed relevance feedback to the learning
// engine.
func (l *Library) RecordFeedback(id string, positive bool) { l.stacks.RecordFeedback(id, positive) }

// Clear resets all stored state.
func (l *Library) Clear() { l.stacks.Clear() }

// Count returns the number of stored volumes.
func (l *Library) Count() int { return l.stacks.Count() }

const enrichedContextBudget = 4

// EnrichSystemPrompt runs a best-effort search against query and
// appends a bounded block of relevant volume text to prompt. Any
// failure (embedding or search) returns prompt unmodified.
func (l *Library) EnrichSystemPrompt(ctx context.Context, prompt, query string) string {
	results, err := l.Search(ctx, query, enrichedContextBudget, 0)
	if err != nil || len(results) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n[Relevant memories]\n")
	for _, r := range results {
		b.WriteString("- ")
		b.WriteString(r.Volume.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// looksLikeError is a conservative heuristic for "this response
// shouldn't seed memory extraction" used by AfterResponse.
func looksLikeError(response string) bool {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	prefixes := []string{"error:", "error -", "exception:", "traceback"}
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// AfterResponse returns early on an empty or error-looking response,
// otherwise enqueues an Extraction job on the Circulation Desk.
func (l *Library) AfterResponse(userInput, response string) {
	if strings.TrimSpace(userInput) == "" || looksLikeError(response) {
		return
	}
	l.desk.Enqueue(desk.Job{Kind: desk.KindExtraction, UserInput: userInput, Response: response})
}

// FilterByTopic returns every volume under topic (including
// descendants).
func (l *Library) FilterByTopic(topic string) []stacks.Volume {
	return l.stacks.FilterByTopic([]string{topic})
}

// FilterByMetadata returns every volume matching every filter (AND).
func (l *Library) FilterByMetadata(filters []metaindex.Filter) []stacks.Volume {
	return l.stacks.FilterByMetadata(filters)
}

// FilterByDateRange returns every volume whose timestamp falls within
// [fromMs, toMs] inclusive.
func (l *Library) FilterByDateRange(fromMs, toMs int64) []stacks.Volume {
	return l.stacks.FilterByDateRange(fromMs, toMs)
}

// TextSearch runs a pure text-mode search (BM25 by default) with no
// embedding involved.
func (l *Library) TextSearch(opts stacks.TextSearchOptions) ([]stacks.ScoredVolume, error) {
	if err := l.errIfDisposed(); err != nil {
		return nil, err
	}
	return l.stacks.TextSearch(opts)
}

// CheckDuplicate embeds text and reports its nearest stored neighbor
// against the configured duplicate threshold.
func (l *Library) CheckDuplicate(ctx context.Context, text string) (stacks.DuplicateResult, error) {
	if err := l.errIfDisposed(); err != nil {
		return stacks.DuplicateResult{}, err
	}
	embedding, err := l.embedOne(ctx, text)
	if err != nil {
		return stacks.DuplicateResult{}, err
	}
	return l.stacks.CheckDuplicate(embedding), nil
}

// FindDuplicates groups stored volumes whose pairwise similarity is at
// or above threshold.
func (l *Library) FindDuplicates(threshold float64) [][]string {
	return l.stacks.FindDuplicates(threshold)
}

// Shelf returns the named view over volumes sharing tag in their
// comma-separated "tags" metadata.
func (l *Library) Shelf(tag string) []stacks.Volume {
	candidates := l.stacks.FilterByMetadata([]metaindex.Filter{
		{Key: "tags", Operator: metaindex.OpContains, Value: tag},
	})
	out := make([]stacks.Volume, 0, len(candidates))
	for _, v := range candidates {
		if hasTag(v.Metadata["tags"], tag) {
			out = append(out, v)
		}
	}
	return out
}

// Shelves lists every distinct tag currently in use, sorted.
func (l *Library) Shelves() []string {
	seen := make(map[string]struct{})
	for _, v := range l.stacks.FilterByMetadata([]metaindex.Filter{
		{Key: "tags", Operator: metaindex.OpNe, Value: ""},
	}) {
		for _, tag := range strings.Split(v.Metadata["tags"], ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				seen[tag] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// hasTag reports whether tag appears as a whole item of the
// comma-separated tags value, not merely as a substring.
func hasTag(tags, tag string) bool {
	for _, t := range strings.Split(tags, ",") {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// Recommend returns a recency/frequency/learning-blended ranking.
func (l *Library) Recommend(opts stacks.RecommendOptions) []stacks.ScoredVolume {
	return l.stacks.Recommend(opts)
}

// PatronProfile is the user-facing view of the adaptive learning
// profile: how many queries have been recorded and the current adapted
// ranking weights.
type PatronProfile struct {
	TotalQueries uint64
	Weights      learning.Weights
}

// Patron returns the current patron profile.
func (l *Library) Patron() PatronProfile {
	total, weights := l.stacks.LearningStats()
	return PatronProfile{TotalQueries: total, Weights: weights}
}

// Flush forces an immediate synchronous save.
func (l *Library) Flush() error { return l.stacks.Flush() }

// Desk exposes the Circulation Desk for direct job enqueue/drain in
// tests and advanced host integrations.
func (l *Library) Desk() *desk.Desk { return l.desk }

// Dispose waits for in-flight Stacks mutations and the current Desk
// job to finish, flushes pending state, and closes storage. Subsequent
// calls to Add/Search fail with library-disposed.
func (l *Library) Dispose(ctx context.Context) error {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return nil
	}
	l.disposed = true
	l.mu.Unlock()

	if err := l.desk.Dispose(ctx); err != nil {
		l.logger.Warn("library: desk dispose did not complete cleanly", slog.Any("error", err))
	}
	if err := l.stacks.Dispose(ctx); err != nil {
		return liberr.New(liberr.KindStorageIO, liberr.CodeStorageIO, "failed to dispose stacks", err)
	}
	return nil
}
