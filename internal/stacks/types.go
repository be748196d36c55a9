// Package stacks implements the vector store core: it owns every
// Volume, the magnitude cache, the BM25 inverted index, the topic
// catalog, the metadata index, access stats, and the learning engine,
// and coordinates add/delete/search/recommend/duplicate detection
// across them with dirty tracking and an auto-save timer.
package stacks

import (
	"time"

	"github.com/patronlib/librarystack/internal/learning"
	"github.com/patronlib/librarystack/internal/metaindex"
)

// Volume is the atomic stored unit: text, its embedding, free-form
// metadata, and an assignment timestamp. Topics is derived from
// Metadata["topic"] when present and kept alongside for convenience;
// the topic catalog remains the source of truth.
type Volume struct {
	ID          string
	Text        string
	Embedding   []float32
	Metadata    map[string]string
	TimestampMs int64
	Topics      []string
}

// clone returns a defensive deep copy, since Stacks never lets a caller
// observe or mutate its internal maps/slices.
func (v Volume) clone() Volume {
	out := v
	out.Embedding = append([]float32(nil), v.Embedding...)
	out.Topics = append([]string(nil), v.Topics...)
	if v.Metadata != nil {
		out.Metadata = make(map[string]string, len(v.Metadata))
		for k, val := range v.Metadata {
			out.Metadata[k] = val
		}
	}
	return out
}

// AddItem is one entry of an AddBatch call.
type AddItem struct {
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// ScoredVolume pairs a Volume with the score it was ranked by.
type ScoredVolume struct {
	Volume Volume
	Score  float64
}

// AccessStat is the per-entry hit bookkeeping used by recommendation
// recency/frequency scoring and eviction hints.
type AccessStat struct {
	Hits      uint32
	LastHitMs int64
}

// DuplicateBehavior controls what Add does when CheckDuplicate reports
// a match at or above the configured threshold.
type DuplicateBehavior string

const (
	DuplicateSkip  DuplicateBehavior = "skip"
	DuplicateWarn  DuplicateBehavior = "warn"
	DuplicateError DuplicateBehavior = "error"
)

// Config configures a Stacks instance.
type Config struct {
	SimilarityThreshold    float64           `yaml:"similarity_threshold" json:"similarity_threshold"`
	MaxResults             int               `yaml:"max_results" json:"max_results"`
	StorageFilename        string            `yaml:"storage_filename" json:"storage_filename"`
	AutoSave               bool              `yaml:"auto_save" json:"auto_save"`
	DuplicateThreshold     float64           `yaml:"duplicate_threshold" json:"duplicate_threshold"`
	DuplicateBehavior      DuplicateBehavior `yaml:"duplicate_behavior" json:"duplicate_behavior"`
	FlushInterval          time.Duration     `yaml:"flush_interval" json:"flush_interval"`
	CompressionLevel       int               `yaml:"compression_level" json:"compression_level"`
	AtomicWrite            bool              `yaml:"atomic_write" json:"atomic_write"`
	AutoSummarizeThreshold int               `yaml:"auto_summarize_threshold" json:"auto_summarize_threshold"`
	IDStrategy             IDStrategy        `yaml:"id_strategy" json:"id_strategy"`
	Learning               learning.Config   `yaml:"learning" json:"learning"`
	TextCacheMaxEntries    int               `yaml:"text_cache_max_entries" json:"text_cache_max_entries"`
	TextCacheMaxBytes      int               `yaml:"text_cache_max_bytes" json:"text_cache_max_bytes"`
	// Clock, if set, overrides time.Now for deterministic tests. Never
	// serialized.
	Clock func() time.Time `yaml:"-" json:"-"`
}

// DefaultConfig returns the documented defaults for every option.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:    0.0,
		MaxResults:             10,
		StorageFilename:        "library",
		AutoSave:               true,
		DuplicateThreshold:     0, // 0 = disabled
		DuplicateBehavior:      DuplicateSkip,
		FlushInterval:          30 * time.Second,
		CompressionLevel:       6,
		AtomicWrite:            true,
		AutoSummarizeThreshold: 0,
		IDStrategy:             IDStrategyMonotone,
		Learning:               learning.DefaultConfig(),
	}
}

// RankBy selects the combination strategy for AdvancedSearch.
type RankBy string

const (
	RankByVector   RankBy = "vector"
	RankByText     RankBy = "text"
	RankByAverage  RankBy = "average"
	RankByWeighted RankBy = "weighted"
)

// RankWeights weighs each modality when RankBy is "weighted". Missing
// (zero) components contribute 0 and their weight is renormalized across
// the modalities actually present for a given candidate.
type RankWeights struct {
	Vector    float64
	Text      float64
	Recency   float64
	Frequency float64
	Metadata  float64
	Topic     float64
}

// FieldBoosts scales specific modalities multiplicatively: Text scales
// the text score and Metadata the per-match metadata boost before
// combination, while Topic multiplies the combined score of candidates
// inside TopicFilter.
type FieldBoosts struct {
	Text     float64
	Metadata float64
	Topic    float64
}

// AdvancedSearchOptions is the input to AdvancedSearch.
type AdvancedSearchOptions struct {
	QueryEmbedding      []float32
	Text                string
	TextMode            string // texttoken.Mode name, default "bm25"
	Metadata            []metaindex.Filter
	DateFromMs          *int64
	DateToMs            *int64
	TopicFilter         []string
	MaxResults          int
	RankBy              RankBy
	RankWeights         *RankWeights
	FieldBoosts         FieldBoosts
	SimilarityThreshold *float64
}

// TextSearchOptions is the input to TextSearch (pure text mode, no
// embedding involved).
type TextSearchOptions struct {
	Query      string
	Mode       string // texttoken.Mode name, default "bm25"
	MaxResults int
	Threshold  float64
}

// RecommendOptions is the input to Recommend.
type RecommendOptions struct {
	QueryEmbedding  []float32
	MaxResults      int
	RecencyHalfLife time.Duration
	MinScore        float64
}

// DuplicateResult is the output of CheckDuplicate.
type DuplicateResult struct {
	IsDuplicate bool
	Similarity  float64
	VolumeID    string
}
