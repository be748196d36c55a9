package stacks

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/patronlib/librarystack/internal/bm25index"
	"github.com/patronlib/librarystack/internal/codec"
	"github.com/patronlib/librarystack/internal/learning"
	"github.com/patronlib/librarystack/internal/mathkernel"
	"github.com/patronlib/librarystack/internal/metaindex"
	"github.com/patronlib/librarystack/internal/storage"
	"github.com/patronlib/librarystack/internal/textcache"
	"github.com/patronlib/librarystack/internal/topiccatalog"
	"github.com/patronlib/librarystack/pkg/liberr"
)

const (
	keyVolumes  = "volumes.bin"
	keyAccess   = "access.bin"
	keyTopics   = "topics.bin"
	keyLearning = "learning.bin"
)

// Stacks owns every volume, the magnitude cache, the BM25 inverted
// index, the topic catalog, the metadata index, access stats, and the
// learning engine, coordinating mutation across all of them behind one
// mutex (single writer, copy-on-read accessors).
type Stacks struct {
	cfg     Config
	storage storage.Backend
	logger  *slog.Logger
	clock   func() time.Time
	ids     *idGenerator

	mu         sync.RWMutex
	dimension  int
	volumes    map[string]Volume
	magnitudes map[string]float64
	// sequences records a monotonic insertion order per id, independent
	// of the id's own string form, used to break score ties by "later
	// insertion" even under the random id strategy.
	sequences map[string]uint64
	nextSeq   uint64
	bm25      *bm25index.Index
	topics     *topiccatalog.Catalog
	meta       *metaindex.Index
	access     map[string]*AccessStat
	textCache  *textcache.Cache
	learning   *learning.Engine

	dirty     bool
	disposed  bool
	loadError error

	timerMu sync.Mutex
	timer   *time.Timer
}

// New creates a Stacks instance bound to backend. Call Load to
// reconstruct prior state before using it.
func New(cfg Config, backend storage.Backend, logger *slog.Logger) *Stacks {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.DuplicateBehavior == "" {
		cfg.DuplicateBehavior = DuplicateSkip
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Stacks{
		cfg:        cfg,
		storage:    backend,
		logger:     logger,
		clock:      clock,
		ids:        newIDGenerator(cfg.IDStrategy),
		volumes:    make(map[string]Volume),
		magnitudes: make(map[string]float64),
		sequences:  make(map[string]uint64),
		bm25:       bm25index.New(),
		topics:     topiccatalog.NewWithThreshold(nonZero(cfg.SimilarityThreshold, topiccatalog.DefaultSimilarityThreshold)),
		meta:       metaindex.New(),
		access:     make(map[string]*AccessStat),
		textCache:  textcache.New(cfg.TextCacheMaxEntries, cfg.TextCacheMaxBytes),
		learning:   learning.New(cfg.Learning),
	}
}

func nonZero(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}

// Load reads the storage snapshot and reconstructs every index. Corrupt
// or absent bytes degrade to an empty store with a warning log, never a
// fatal error.
func (s *Stacks) Load() error {
	snapshot, err := s.storage.Load()
	if err != nil {
		s.logger.Warn("stacks: storage load failed, starting empty", slog.Any("error", err))
		s.mu.Lock()
		s.loadError = err
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := snapshot[keyVolumes]; ok {
		records, err := codec.DecodeVolumes(raw)
		if err != nil {
			s.logger.Warn("stacks: volumes.bin corrupt, treating as empty", slog.Any("error", err))
		} else {
			for _, r := range records {
				v := Volume{
					ID:          r.ID,
					Text:        r.Text,
					Embedding:   r.Embedding,
					Metadata:    r.Metadata,
					TimestampMs: int64(r.TimestampMs),
				}
				if topic, ok := v.Metadata["topic"]; ok && topic != "" {
					v.Topics = []string{topic}
				}
				s.insertVolumeLocked(v, false)
			}
		}
	}

	if raw, ok := snapshot[keyAccess]; ok {
		records, err := codec.DecodeAccess(raw)
		if err != nil {
			s.logger.Warn("stacks: access.bin corrupt, treating as empty", slog.Any("error", err))
		} else {
			for _, r := range records {
				s.access[r.ID] = &AccessStat{Hits: r.Hits, LastHitMs: int64(r.LastHitMs)}
			}
		}
	}

	if raw, ok := snapshot[keyTopics]; ok {
		snap, err := codec.DecodeTopics(raw)
		if err != nil {
			s.logger.Warn("stacks: topics.bin corrupt, treating as empty", slog.Any("error", err))
		} else {
			for id, topic := range snap.VolumeTopics {
				s.topics.RegisterVolume(id, topic)
			}
			for alias, canon := range snap.Aliases {
				s.topics.Alias(alias, canon)
			}
		}
	}

	if raw, ok := snapshot[keyLearning]; ok {
		snap, err := codec.DecodeLearning(raw)
		if err != nil {
			s.logger.Warn("stacks: learning.bin corrupt, treating as empty", slog.Any("error", err))
		} else {
			history := make([]learning.HistoryEntry, 0, len(snap.History))
			for _, h := range snap.History {
				history = append(history, learning.HistoryEntry{Embedding: h.Embedding, RetrievedIDs: h.RetrievedIDs})
			}
			feedback := make(map[string]learning.FeedbackEntry, len(snap.Feedback))
			for id, f := range snap.Feedback {
				feedback[id] = learning.FeedbackEntry{
					TotalRetrievals: f.TotalRetrievals,
					QueryCount:      f.QueryCount,
					FirstSeenMs:     int64(f.FirstSeenMs),
					LastSeenMs:      int64(f.LastSeenMs),
				}
			}
			s.learning.Restore(snap.TotalQueries, learning.Weights{
				Vector:    float64(snap.Weights.Vector),
				Recency:   float64(snap.Weights.Recency),
				Frequency: float64(snap.Weights.Frequency),
				Text:      float64(snap.Weights.Text),
			}, history, feedback)
		}
	}

	return nil
}

// insertVolumeLocked folds v into every index. markDirty controls
// whether this counts as a mutation requiring a future save (false
// during Load, true for every runtime Add).
func (s *Stacks) insertVolumeLocked(v Volume, markDirty bool) {
	if s.dimension == 0 && len(v.Embedding) > 0 {
		s.dimension = len(v.Embedding)
	}
	s.volumes[v.ID] = v
	s.magnitudes[v.ID] = mathkernel.Magnitude(v.Embedding)
	s.nextSeq++
	s.sequences[v.ID] = s.nextSeq
	s.bm25.Add(v.ID, v.Text)
	s.meta.Add(v.ID, v.Metadata)
	if topic, ok := v.Metadata["topic"]; ok && topic != "" {
		s.topics.RegisterVolume(v.ID, topic)
	}
	if markDirty {
		s.dirty = true
	}
}

func (s *Stacks) removeVolumeLocked(id string) bool {
	v, ok := s.volumes[id]
	if !ok {
		return false
	}
	delete(s.volumes, id)
	delete(s.magnitudes, id)
	delete(s.sequences, id)
	delete(s.access, id)
	s.bm25.Remove(id)
	s.meta.Remove(id, v.Metadata)
	s.topics.Unregister(id)
	s.textCache.Remove(id)
	s.dirty = true
	return true
}

// Add embeds nothing itself (the caller supplies the embedding); it
// validates, assigns an id and timestamp, updates every index, and
// triggers the auto-save policy. Returns a *liberr.LibraryError of
// KindMemoryEmptyText for an empty text, KindDimensionMismatch for a
// vector of the wrong dimension once the store's dimension is fixed, or
// KindMemoryDuplicateRejected when DuplicateBehavior is "error" and a
// duplicate is detected.
func (s *Stacks) Add(text string, embedding []float32, metadata map[string]string) (string, error) {
	if text == "" {
		return "", liberr.New(liberr.KindMemoryEmptyText, liberr.CodeMemoryEmptyText, "volume text must not be empty", nil)
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return "", liberr.New(liberr.KindLibraryDisposed, liberr.CodeLibraryDisposed, "stacks is disposed", nil)
	}
	if s.dimension != 0 && len(embedding) != s.dimension {
		s.mu.Unlock()
		return "", liberr.New(liberr.KindDimensionMismatch, liberr.CodeDimensionMismatch, "embedding dimension mismatch", nil).
			WithDetail("expected", itoa(s.dimension)).WithDetail("actual", itoa(len(embedding)))
	}

	if s.cfg.DuplicateThreshold > 0 {
		dup := s.checkDuplicateLocked(embedding)
		if dup.IsDuplicate {
			switch s.cfg.DuplicateBehavior {
			case DuplicateError:
				s.mu.Unlock()
				return "", liberr.New(liberr.KindMemoryDuplicateRejected, liberr.CodeMemoryDuplicateRejected,
					"duplicate volume rejected", nil).WithDetail("existingId", dup.VolumeID)
			case DuplicateWarn:
				s.logger.Warn("stacks: adding near-duplicate volume", slog.String("existing_id", dup.VolumeID), slog.Float64("similarity", dup.Similarity))
			default:
				s.mu.Unlock()
				s.logger.Info("stacks: skipped duplicate volume", slog.String("existing_id", dup.VolumeID))
				return dup.VolumeID, nil
			}
		}
	}

	id := s.ids.next()
	for _, taken := s.volumes[id]; taken; _, taken = s.volumes[id] {
		id = s.ids.next()
	}
	v := Volume{
		ID:          id,
		Text:        text,
		Embedding:   append([]float32(nil), embedding...),
		Metadata:    cloneMeta(metadata),
		TimestampMs: s.clock().UnixMilli(),
	}
	if topic, ok := v.Metadata["topic"]; ok && topic != "" {
		v.Topics = []string{topic}
	}
	s.insertVolumeLocked(v, true)
	s.textCache.Put(id, text)
	s.mu.Unlock()

	s.scheduleSave()
	return id, nil
}

// AddBatch validates the text and embedding dimension of every item
// before mutating anything (all-or-nothing at the validation boundary).
// Duplicate detection runs per item as in Add, so a duplicate rejected
// under DuplicateError stops the batch part-way and returns the ids
// stored so far. Each stored item triggers the auto-save policy as a
// single Add does.
func (s *Stacks) AddBatch(items []AddItem) ([]string, error) {
	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()
	for i, item := range items {
		if item.Text == "" {
			return nil, liberr.New(liberr.KindMemoryEmptyText, liberr.CodeMemoryEmptyText, "volume text must not be empty", nil).
				WithDetail("batchIndex", itoa(i))
		}
		if dim == 0 {
			dim = len(item.Embedding)
		}
		if dim != 0 && len(item.Embedding) != dim {
			return nil, liberr.New(liberr.KindDimensionMismatch, liberr.CodeDimensionMismatch, "embedding dimension mismatch", nil).
				WithDetail("expected", itoa(dim)).WithDetail("actual", itoa(len(item.Embedding))).WithDetail("batchIndex", itoa(i))
		}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := s.Add(item.Text, item.Embedding, item.Metadata)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetByID returns a defensive copy of the volume, or ok=false if unknown.
func (s *Stacks) GetByID(id string) (Volume, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.volumes[id]
	if !ok {
		return Volume{}, false
	}
	return v.clone(), true
}

// Delete removes id from every index. Returns false if id was unknown.
func (s *Stacks) Delete(id string) bool {
	s.mu.Lock()
	ok := s.removeVolumeLocked(id)
	s.mu.Unlock()
	if ok {
		s.learning.PruneEntries(s.liveIDs())
		s.scheduleSave()
	}
	return ok
}

// DeleteBatch deletes every id in ids, returning the count actually
// removed.
func (s *Stacks) DeleteBatch(ids []string) int {
	s.mu.Lock()
	n := 0
	for _, id := range ids {
		if s.removeVolumeLocked(id) {
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.learning.PruneEntries(s.liveIDs())
		s.scheduleSave()
	}
	return n
}

// Relocate moves id to a new topic, replacing its topic metadata.
func (s *Stacks) Relocate(id, newTopic string) error {
	s.mu.Lock()
	v, ok := s.volumes[id]
	if !ok {
		s.mu.Unlock()
		return liberr.New(liberr.KindMemoryEntryNotFound, liberr.CodeMemoryEntryNotFound, "volume not found", nil).WithDetail("id", id)
	}
	canon := s.topics.Relocate(id, newTopic)
	if v.Metadata == nil {
		v.Metadata = make(map[string]string)
	}
	v.Metadata["topic"] = canon
	v.Topics = []string{canon}
	s.volumes[id] = v
	s.dirty = true
	s.mu.Unlock()
	s.scheduleSave()
	return nil
}

// RecordFeedback forwards confirmed relevance feedback to the learning
// engine and marks the profile for persistence.
func (s *Stacks) RecordFeedback(id string, positive bool) {
	s.learning.RecordFeedback(id, positive)
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
	s.scheduleSave()
}

// Clear resets all in-memory state; the reset is persisted on the next
// save.
func (s *Stacks) Clear() {
	s.mu.Lock()
	s.volumes = make(map[string]Volume)
	s.magnitudes = make(map[string]float64)
	s.sequences = make(map[string]uint64)
	s.nextSeq = 0
	s.bm25 = bm25index.New()
	s.topics = topiccatalog.NewWithThreshold(nonZero(s.cfg.SimilarityThreshold, topiccatalog.DefaultSimilarityThreshold))
	s.meta = metaindex.New()
	s.access = make(map[string]*AccessStat)
	s.textCache.Clear()
	s.dimension = 0
	s.dirty = true
	s.mu.Unlock()
	s.scheduleSave()
}

// Count returns the number of stored volumes.
func (s *Stacks) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.volumes)
}

// LearningStats exposes the learning engine's query count and current
// adapted weights for host-program introspection.
func (s *Stacks) LearningStats() (totalQueries uint64, weights learning.Weights) {
	return s.learning.TotalQueries(), s.learning.Weights()
}

// Dimension returns the store's fixed embedding dimension (0 if no
// volume has been added yet).
func (s *Stacks) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *Stacks) liveIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.volumes))
	for id := range s.volumes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Stacks) touchAccess(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.access[id]
	if !ok {
		a = &AccessStat{}
		s.access[id] = a
	}
	a.Hits++
	a.LastHitMs = s.clock().UnixMilli()
	// Access stats and the query history recorded alongside them are
	// part of the snapshot, so a hit counts as a mutation.
	s.dirty = true
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Dispose flushes any dirty state (if AutoSave), stops the auto-save
// timer, and closes storage. Subsequent calls are no-ops.
func (s *Stacks) Dispose(ctx context.Context) error {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerMu.Unlock()

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	needsSave := s.cfg.AutoSave && s.dirty
	s.mu.Unlock()

	if needsSave {
		if err := s.flush(); err != nil {
			return err
		}
	}
	return s.storage.Close()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
