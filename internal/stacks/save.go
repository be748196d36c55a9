package stacks

import (
	"log/slog"
	"sort"
	"time"

	"github.com/patronlib/librarystack/internal/codec"
	"github.com/patronlib/librarystack/internal/topiccatalog"
)

// scheduleSave implements the auto-save policy: when AutoSave is false,
// nothing is written automatically (Dispose does not save either; only
// an explicit Flush writes); when FlushInterval is 0, every mutation
// flushes immediately; otherwise a single rearming timer is (re)started
// on each mutation.
func (s *Stacks) scheduleSave() {
	if !s.cfg.AutoSave {
		return
	}
	if s.cfg.FlushInterval <= 0 {
		if err := s.flush(); err != nil {
			s.logger.Warn("stacks: immediate auto-save failed", slog.Any("error", err))
		}
		return
	}

	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.FlushInterval, func() {
		if err := s.flush(); err != nil {
			s.logger.Warn("stacks: scheduled auto-save failed", slog.Any("error", err))
		}
	})
}

// Flush forces an immediate save regardless of the auto-save policy,
// used by Library.dispose-adjacent flows and tests.
func (s *Stacks) Flush() error {
	return s.flush()
}

// flush serializes the current in-memory state and hands it to storage.
// A write failure is surfaced to the caller while leaving in-memory
// state untouched.
func (s *Stacks) flush() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.buildSnapshotLocked()
	s.mu.Unlock()

	if err := s.storage.Save(snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

func (s *Stacks) buildSnapshotLocked() map[string][]byte {
	volumeRecords := make([]codec.VolumeRecord, 0, len(s.volumes))
	ids := make([]string, 0, len(s.volumes))
	for id := range s.volumes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		v := s.volumes[id]
		volumeRecords = append(volumeRecords, codec.VolumeRecord{
			ID:          v.ID,
			Text:        v.Text,
			Embedding:   v.Embedding,
			TimestampMs: uint64(v.TimestampMs),
			Metadata:    v.Metadata,
		})
	}

	accessIDs := make([]string, 0, len(s.access))
	for id := range s.access {
		accessIDs = append(accessIDs, id)
	}
	sort.Strings(accessIDs)
	accessRecords := make([]codec.AccessRecord, 0, len(accessIDs))
	for _, id := range accessIDs {
		a := s.access[id]
		accessRecords = append(accessRecords, codec.AccessRecord{ID: id, Hits: a.Hits, LastHitMs: uint64(a.LastHitMs)})
	}

	topicSnapshot := codec.TopicSnapshot{
		Aliases:      s.topics.Aliases(),
		VolumeTopics: make(map[string]string),
	}
	for _, topic := range s.topics.Topics() {
		topicSnapshot.Topics = append(topicSnapshot.Topics, codec.TopicEntry{
			Path:     topic,
			Parent:   topiccatalog.ParentOf(topic),
			Children: s.topics.ChildrenOf(topic),
		})
	}
	for _, id := range ids {
		if topic, ok := s.topics.TopicOf(id); ok {
			topicSnapshot.VolumeTopics[id] = topic
		}
	}

	totalQueries, weights, history, feedback := s.learning.Snapshot()
	learningHistory := make([]codec.QueryHistoryEntry, 0, len(history))
	for _, h := range history {
		learningHistory = append(learningHistory, codec.QueryHistoryEntry{Embedding: h.Embedding, RetrievedIDs: h.RetrievedIDs})
	}
	learningFeedback := make(map[string]codec.FeedbackEntry, len(feedback))
	for id, f := range feedback {
		learningFeedback[id] = codec.FeedbackEntry{
			TotalRetrievals: f.TotalRetrievals,
			QueryCount:      f.QueryCount,
			FirstSeenMs:     uint64(f.FirstSeenMs),
			LastSeenMs:      uint64(f.LastSeenMs),
		}
	}

	return map[string][]byte{
		keyVolumes: codec.EncodeVolumes(volumeRecords),
		keyAccess:  codec.EncodeAccess(accessRecords),
		keyTopics:  codec.EncodeTopics(topicSnapshot),
		keyLearning: codec.EncodeLearning(codec.LearningSnapshot{
			Version:      codec.LearningFormatVersion,
			TotalQueries: totalQueries,
			Weights: codec.LearningWeights{
				Vector:    float32(weights.Vector),
				Recency:   float32(weights.Recency),
				Frequency: float32(weights.Frequency),
				Text:      float32(weights.Text),
			},
			History:  learningHistory,
			Feedback: learningFeedback,
		}),
	}
}
