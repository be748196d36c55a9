// Package desk implements the Circulation Desk: a single-consumer,
// cooperative FIFO job queue that drives Librarian extraction,
// summarization (compendium), optimization, and reorganization work
// against unreliable external text-generation calls, preserving
// partial-failure semantics — a failed job is logged and swallowed,
// never crashes the queue.
package desk

import (
	"context"
	"time"
)

// Kind distinguishes the four job variants.
type Kind string

const (
	KindExtraction     Kind = "extraction"
	KindCompendium     Kind = "compendium"
	KindOptimization   Kind = "optimization"
	KindReorganization Kind = "reorganization"
)

// Job is the union over the four job variants, carrying an enqueue
// timestamp. Only the fields relevant to Kind are meaningful.
type Job struct {
	Kind         Kind
	EnqueuedAtMs int64

	// Extraction
	UserInput string
	Response  string

	// Compendium / Optimization / Reorganization
	Topic   string
	ModelID string
}

// CompendiumThresholds gates when a Compendium job actually does work.
type CompendiumThresholds struct {
	MinEntries      int   `yaml:"min_entries" json:"min_entries"`
	MinAgeMs        int64 `yaml:"min_age_ms" json:"min_age_ms"`
	DeleteOriginals bool  `yaml:"delete_originals" json:"delete_originals"`
}

// OptimizationThresholds configures auto-escalation into an
// Optimization job after extraction.
type OptimizationThresholds struct {
	ModelID         string `yaml:"model_id" json:"model_id"`
	TopicThreshold  int    `yaml:"topic_threshold" json:"topic_threshold"`
	GlobalThreshold int    `yaml:"global_threshold" json:"global_threshold"`
}

// ReorganizationThresholds bounds how large a topic's volume set may grow
// before a Reorganization job is warranted.
type ReorganizationThresholds struct {
	MaxVolumesPerTopic int `yaml:"max_volumes_per_topic" json:"max_volumes_per_topic"`
}

// SpawningThresholds gates when auto-escalation asks the Registry to
// spawn a specialist librarian.
type SpawningThresholds struct {
	ComplexityThreshold int    `yaml:"complexity_threshold" json:"complexity_threshold"`
	ModelID             string `yaml:"model_id" json:"model_id"`
}

// Config configures a Desk's job thresholds.
type Config struct {
	Compendium     CompendiumThresholds     `yaml:"compendium" json:"compendium"`
	Optimization   OptimizationThresholds   `yaml:"optimization" json:"optimization"`
	Reorganization ReorganizationThresholds `yaml:"reorganization" json:"reorganization"`
	Spawning       SpawningThresholds       `yaml:"spawning" json:"spawning"`
}

// DefaultConfig returns conservative defaults: compendium kicks in at 10
// same-topic entries at least a day old; optimization at 50 entries in
// one topic or 500 total; spawning at 20 extracted memories per batch.
func DefaultConfig() Config {
	return Config{
		Compendium: CompendiumThresholds{
			MinEntries: 10,
			MinAgeMs:   int64(24 * time.Hour / time.Millisecond),
		},
		Optimization: OptimizationThresholds{
			TopicThreshold:  50,
			GlobalThreshold: 500,
		},
		Reorganization: ReorganizationThresholds{
			MaxVolumesPerTopic: 200,
		},
		Spawning: SpawningThresholds{
			ComplexityThreshold: 20,
		},
	}
}

// VolumeView is the read-only volume projection the Desk's callbacks
// traffic in; it mirrors librarian.VolumeView so a Library facade can
// translate its own internal Volume type without the Desk importing it.
type VolumeView struct {
	ID          string
	Text        string
	Metadata    map[string]string
	TimestampMs int64
}

// Callbacks are the capability references the Desk holds instead of a
// pointer back to Stacks/Library, keeping the Desk's lifetime strictly
// nested inside the Library's without a reference cycle.
type Callbacks struct {
	// Embed turns text into a vector using the Library's configured
	// embedding provider.
	Embed func(ctx context.Context, text string) ([]float32, error)

	// CheckDuplicate reports whether embedding already matches a stored
	// volume above the configured duplicate threshold.
	CheckDuplicate func(embedding []float32) (isDuplicate bool, existingID string)

	// AddVolume stores text under embedding/metadata and returns its id.
	AddVolume func(text string, embedding []float32, metadata map[string]string) (string, error)

	// DeleteVolume removes a volume by id.
	DeleteVolume func(id string) bool

	// RelocateVolume moves a volume to a new topic.
	RelocateVolume func(id, newTopic string) error

	// VolumesByTopic returns every volume under topic (and descendants).
	VolumesByTopic func(topic string) []VolumeView

	// CountByTopic returns how many volumes live under topic.
	CountByTopic func(topic string) int

	// TotalCount returns the total number of stored volumes.
	TotalCount func() int

	// MostPopulousTopic returns the topic with the most volumes and its
	// count.
	MostPopulousTopic func() (string, int)

	// EnsureTopic materializes a new subtopic with no member volumes.
	EnsureTopic func(topic string)

	// MergeTopic folds src into tgt.
	MergeTopic func(src, tgt string)

	// SpawnSpecialist is invoked when an extraction batch's complexity
	// crosses Spawning.ComplexityThreshold; nil if no Registry is
	// attached.
	SpawnSpecialist func(topic string)
}
