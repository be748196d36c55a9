// Package learning implements the adaptive relevance-weighting engine:
// query history, per-entry feedback tracking, periodic weight
// adaptation, and the interest-aligned recommendation boost consumed by
// Stacks search and recommend.
//
// The adaptation rule: every adaptEvery queries, compute each weight
// component's mean confirmed-positive correlation over the batch's
// feedback events (how well that component's proxy signal lined up with
// the polarity of the feedback), shift the weight by ±0.05 toward
// components whose correlation exceeds 0.5, clamp to [0.05,0.9], then
// renormalize to sum 1.
package learning

import (
	"math"
	"sync"
	"time"

	"github.com/patronlib/librarystack/internal/mathkernel"
)

// Weights are the adapted ranking-component weights; they always sum to
// 1 within floating-point tolerance.
type Weights struct {
	Vector    float64
	Recency   float64
	Frequency float64
	Text      float64
}

func defaultWeights() Weights {
	return Weights{Vector: 0.6, Recency: 0.2, Frequency: 0.2, Text: 0.0}
}

// HistoryEntry is one ring-buffer slot of recorded query history.
type HistoryEntry struct {
	Embedding    []float32
	RetrievedIDs []string
	AtMs         int64
}

// FeedbackEntry tracks how often and how recently an entry has been
// retrieved and what feedback polarity it has accumulated.
type FeedbackEntry struct {
	TotalRetrievals uint64
	QueryCount      uint64
	FirstSeenMs     int64
	LastSeenMs      int64
	PositiveCount   uint64
	NegativeCount   uint64
}

type feedbackEvent struct {
	id       string
	positive bool
	signals  Weights
}

// Config configures an Engine.
type Config struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	MaxQueryHistory int           `yaml:"max_query_history" json:"max_query_history"`
	AdaptEvery      int           `yaml:"adapt_every" json:"adapt_every"`
	RecencyHalfLife time.Duration `yaml:"recency_half_life" json:"recency_half_life"`
	// Clock, if set, overrides time.Now for deterministic tests. Never
	// serialized.
	Clock func() time.Time `yaml:"-" json:"-"`
}

// DefaultConfig returns the defaults: enabled, 256-entry history, adapt
// every 8 queries, 7-day recency half-life.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxQueryHistory: 256,
		AdaptEvery:      8,
		RecencyHalfLife: 7 * 24 * time.Hour,
	}
}

// Engine is the adaptive learning engine. It is safe for concurrent use.
type Engine struct {
	cfg   Config
	clock func() time.Time

	mu                sync.Mutex
	totalQueries      uint64
	queriesSinceAdapt int
	history           []HistoryEntry
	feedback          map[string]*FeedbackEntry
	batch             []feedbackEvent
	weights           Weights
	maxRetrievals     uint64
}

// New creates an Engine. A zero-value Config.Clock defaults to time.Now.
func New(cfg Config) *Engine {
	if cfg.MaxQueryHistory <= 0 {
		cfg.MaxQueryHistory = 256
	}
	if cfg.AdaptEvery <= 0 {
		cfg.AdaptEvery = 8
	}
	if cfg.RecencyHalfLife <= 0 {
		cfg.RecencyHalfLife = 7 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Engine{
		cfg:      cfg,
		clock:    cfg.Clock,
		feedback: make(map[string]*FeedbackEntry),
		weights:  defaultWeights(),
	}
}

// Enabled reports whether the engine is active.
func (e *Engine) Enabled() bool { return e.cfg.Enabled }

// TotalQueries returns the number of recorded queries.
func (e *Engine) TotalQueries() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalQueries
}

// Weights returns a copy of the current adapted weights.
func (e *Engine) Weights() Weights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
}

// RecordQuery folds one query into the history ring buffer and bumps
// per-entry retrieval/distinct-query counters for every retrieved id.
// Empty embeddings or empty result sets are ignored. Disabled engines
// no-op.
func (e *Engine) RecordQuery(queryEmbedding []float32, retrievedIDs []string) {
	if !e.cfg.Enabled || len(queryEmbedding) == 0 || len(retrievedIDs) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock().UnixMilli()

	entry := HistoryEntry{
		Embedding:    append([]float32(nil), queryEmbedding...),
		RetrievedIDs: append([]string(nil), retrievedIDs...),
		AtMs:         now,
	}
	e.history = append(e.history, entry)
	if len(e.history) > e.cfg.MaxQueryHistory {
		e.history = e.history[len(e.history)-e.cfg.MaxQueryHistory:]
	}

	e.totalQueries++
	for _, id := range retrievedIDs {
		fe := e.feedbackLocked(id)
		fe.TotalRetrievals++
		fe.QueryCount++
		if fe.FirstSeenMs == 0 {
			fe.FirstSeenMs = now
		}
		fe.LastSeenMs = now
		if fe.TotalRetrievals > e.maxRetrievals {
			e.maxRetrievals = fe.TotalRetrievals
		}
	}

	e.queriesSinceAdapt++
	if e.queriesSinceAdapt >= e.cfg.AdaptEvery {
		e.adaptLocked()
		e.queriesSinceAdapt = 0
	}
}

// RecordFeedback records a confirmed positive or negative relevance
// signal for id, to be folded into the next weight adaptation. Disabled
// engines no-op.
func (e *Engine) RecordFeedback(id string, positive bool) {
	if !e.cfg.Enabled {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fe := e.feedbackLocked(id)
	if positive {
		fe.PositiveCount++
	} else {
		fe.NegativeCount++
	}

	e.batch = append(e.batch, feedbackEvent{
		id:       id,
		positive: positive,
		signals:  e.componentSignalsLocked(fe),
	})
}

func (e *Engine) feedbackLocked(id string) *FeedbackEntry {
	fe, ok := e.feedback[id]
	if !ok {
		fe = &FeedbackEntry{}
		e.feedback[id] = fe
	}
	return fe
}

// componentSignalsLocked computes, for the current state of fe, a proxy
// signal in [0,1] per weight component: frequency from log-scaled
// retrieval count, recency from exponential decay against the half-life,
// and a diversity proxy shared by the vector/text components (how broad
// a fraction of all queries this entry has surfaced under).
func (e *Engine) componentSignalsLocked(fe *FeedbackEntry) Weights {
	now := e.clock().UnixMilli()

	frequency := 0.0
	if e.maxRetrievals > 0 {
		frequency = math.Log1p(float64(fe.TotalRetrievals)) / math.Log1p(float64(e.maxRetrievals))
	}

	recency := 0.0
	if fe.LastSeenMs > 0 {
		deltaMs := float64(now - fe.LastSeenMs)
		if deltaMs < 0 {
			deltaMs = 0
		}
		recency = math.Exp(-deltaMs * math.Ln2 / float64(e.cfg.RecencyHalfLife.Milliseconds()))
	}

	diversity := 0.0
	if e.totalQueries > 0 {
		diversity = float64(fe.QueryCount) / float64(e.totalQueries)
		if diversity > 1 {
			diversity = 1
		}
	}

	return Weights{Vector: diversity, Recency: recency, Frequency: frequency, Text: diversity}
}

// adaptLocked applies the batch's accumulated feedback events to shift
// and renormalize the weights, then clears the batch.
func (e *Engine) adaptLocked() {
	if len(e.batch) == 0 {
		return
	}

	var sumVector, sumRecency, sumFrequency, sumText float64
	for _, ev := range e.batch {
		sumVector += polarityAlignedSignal(ev.signals.Vector, ev.positive)
		sumRecency += polarityAlignedSignal(ev.signals.Recency, ev.positive)
		sumFrequency += polarityAlignedSignal(ev.signals.Frequency, ev.positive)
		sumText += polarityAlignedSignal(ev.signals.Text, ev.positive)
	}
	n := float64(len(e.batch))
	correlation := Weights{
		Vector:    sumVector / n,
		Recency:   sumRecency / n,
		Frequency: sumFrequency / n,
		Text:      sumText / n,
	}

	e.weights.Vector = shiftAndClamp(e.weights.Vector, correlation.Vector)
	e.weights.Recency = shiftAndClamp(e.weights.Recency, correlation.Recency)
	e.weights.Frequency = shiftAndClamp(e.weights.Frequency, correlation.Frequency)
	e.weights.Text = shiftAndClamp(e.weights.Text, correlation.Text)

	total := e.weights.Vector + e.weights.Recency + e.weights.Frequency + e.weights.Text
	if total > 0 {
		e.weights.Vector /= total
		e.weights.Recency /= total
		e.weights.Frequency /= total
		e.weights.Text /= total
	}

	e.batch = e.batch[:0]
}

// polarityAlignedSignal rewards a signal that was high for a positive
// event, or low for a negative one — both read as "this component
// predicted the feedback".
func polarityAlignedSignal(signal float64, positive bool) float64 {
	if positive {
		return signal
	}
	return 1 - signal
}

const adaptationStep = 0.05
const minWeight = 0.05
const maxWeight = 0.9

func shiftAndClamp(weight, correlation float64) float64 {
	if correlation > 0.5 {
		weight += adaptationStep
	} else {
		weight -= adaptationStep
	}
	if weight < minWeight {
		weight = minWeight
	}
	if weight > maxWeight {
		weight = maxWeight
	}
	return weight
}

// boostAlpha scales f's deviation from 0.5 into the [0.8,1.2] boost
// range exactly, since f is itself clamped to [0,1].
const boostAlpha = 0.4

// ComputeBoost returns the recommendation/search boost multiplier for id
// given the current query embedding, in [0.8, 1.2]. Disabled engines (or
// unknown ids) return 1.0.
func (e *Engine) ComputeBoost(id string, queryEmbedding []float32) float64 {
	if !e.cfg.Enabled {
		return 1.0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fe, ok := e.feedback[id]
	if !ok {
		return 1.0
	}

	signals := e.componentSignalsLocked(fe)
	frequency := signals.Frequency
	recency := signals.Recency
	diversity := signals.Vector

	alignment := 0.5
	if interest, ok := e.interestEmbeddingLocked(); ok && len(queryEmbedding) == len(interest) {
		cos := mathkernel.Cosine(queryEmbedding, interest, 0, 0)
		alignment = (cos + 1) / 2
	}

	f := (frequency + recency + diversity + alignment) / 4
	boost := 1 + boostAlpha*(f-0.5)
	if boost < 0.8 {
		boost = 0.8
	}
	if boost > 1.2 {
		boost = 1.2
	}
	return boost
}

// interestEmbeddingLocked returns the mean of normalized embeddings
// across the query history, or ok=false if history is empty.
func (e *Engine) interestEmbeddingLocked() ([]float32, bool) {
	if len(e.history) == 0 {
		return nil, false
	}
	dim := len(e.history[0].Embedding)
	if dim == 0 {
		return nil, false
	}

	sum := make([]float64, dim)
	count := 0
	for _, h := range e.history {
		if len(h.Embedding) != dim {
			continue
		}
		norm := mathkernel.Normalize(h.Embedding)
		for i, v := range norm {
			sum[i] += float64(v)
		}
		count++
	}
	if count == 0 {
		return nil, false
	}

	out := make([]float32, dim)
	for i, v := range sum {
		out[i] = float32(v / float64(count))
	}
	return out, true
}

// PruneEntries drops feedback bookkeeping for ids no longer present in
// liveIDs.
func (e *Engine) PruneEntries(liveIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	live := make(map[string]struct{}, len(liveIDs))
	for _, id := range liveIDs {
		live[id] = struct{}{}
	}
	for id := range e.feedback {
		if _, ok := live[id]; !ok {
			delete(e.feedback, id)
		}
	}
}

// Snapshot exports the engine's serializable state for persistence.
func (e *Engine) Snapshot() (totalQueries uint64, weights Weights, history []HistoryEntry, feedback map[string]FeedbackEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	historyCopy := make([]HistoryEntry, len(e.history))
	copy(historyCopy, e.history)

	feedbackCopy := make(map[string]FeedbackEntry, len(e.feedback))
	for id, fe := range e.feedback {
		feedbackCopy[id] = *fe
	}
	return e.totalQueries, e.weights, historyCopy, feedbackCopy
}

// Restore replaces the engine's state with a previously-saved snapshot,
// used by Stacks.load.
func (e *Engine) Restore(totalQueries uint64, weights Weights, history []HistoryEntry, feedback map[string]FeedbackEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalQueries = totalQueries
	e.weights = weights
	e.history = append([]HistoryEntry(nil), history...)
	e.feedback = make(map[string]*FeedbackEntry, len(feedback))
	for id, fe := range feedback {
		copied := fe
		e.feedback[id] = &copied
		if fe.TotalRetrievals > e.maxRetrievals {
			e.maxRetrievals = fe.TotalRetrievals
		}
	}
}
