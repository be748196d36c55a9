package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumes_RoundTrip(t *testing.T) {
	records := []VolumeRecord{
		{ID: "a", Text: "hello world", Embedding: []float32{0.1, 0.2, 0.3}, TimestampMs: 1000, Metadata: map[string]string{"topic": "x", "tag": "y"}},
		{ID: "b", Text: "second entry", Embedding: []float32{0.4, 0.5}, TimestampMs: 2000, Metadata: nil},
	}
	encoded := EncodeVolumes(records)
	decoded, err := DecodeVolumes(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, records[0].ID, decoded[0].ID)
	assert.Equal(t, records[0].Text, decoded[0].Text)
	assert.Equal(t, records[0].Embedding, decoded[0].Embedding)
	assert.Equal(t, records[0].TimestampMs, decoded[0].TimestampMs)
	assert.Equal(t, records[0].Metadata, decoded[0].Metadata)
	assert.Equal(t, records[1].ID, decoded[1].ID)
}

func TestVolumes_EncodeIsDeterministic(t *testing.T) {
	record := VolumeRecord{ID: "a", Text: "t", Embedding: []float32{1, 2}, TimestampMs: 5, Metadata: map[string]string{"z": "1", "a": "2", "m": "3"}}
	first := EncodeVolumes([]VolumeRecord{record})
	second := EncodeVolumes([]VolumeRecord{record})
	assert.Equal(t, first, second)
}

func TestAccess_RoundTrip(t *testing.T) {
	records := []AccessRecord{
		{ID: "a", Hits: 3, LastHitMs: 111},
		{ID: "b", Hits: 0, LastHitMs: 0},
	}
	decoded, err := DecodeAccess(EncodeAccess(records))
	require.NoError(t, err)
	assert.Equal(t, records, decoded)
}

func TestTopics_RoundTrip(t *testing.T) {
	snap := TopicSnapshot{
		Topics: []TopicEntry{
			{Path: "programming", Parent: "", Children: []string{"programming/rust"}},
			{Path: "programming/rust", Parent: "programming", Children: nil},
		},
		Aliases:      map[string]string{"coding": "programming"},
		VolumeTopics: map[string]string{"v1": "programming/rust"},
	}
	decoded, err := DecodeTopics(EncodeTopics(snap))
	require.NoError(t, err)
	assert.Equal(t, snap.Topics, decoded.Topics)
	assert.Equal(t, snap.Aliases, decoded.Aliases)
	assert.Equal(t, snap.VolumeTopics, decoded.VolumeTopics)
}

func TestLearning_RoundTrip(t *testing.T) {
	snap := LearningSnapshot{
		TotalQueries: 42,
		Weights:      LearningWeights{Vector: 0.6, Recency: 0.2, Frequency: 0.2},
		History: []QueryHistoryEntry{
			{Embedding: []float32{0.1, 0.2}, RetrievedIDs: []string{"a", "b"}},
		},
		Feedback: map[string]FeedbackEntry{
			"a": {TotalRetrievals: 5, QueryCount: 2, FirstSeenMs: 10, LastSeenMs: 20},
		},
	}
	decoded, err := DecodeLearning(EncodeLearning(snap))
	require.NoError(t, err)
	assert.Equal(t, LearningFormatVersion, decoded.Version)
	assert.Equal(t, snap.TotalQueries, decoded.TotalQueries)
	assert.Equal(t, snap.Weights, decoded.Weights)
	assert.Equal(t, snap.History, decoded.History)
	assert.Equal(t, snap.Feedback, decoded.Feedback)
}

func TestDecodeLearning_RejectsUnsupportedVersion(t *testing.T) {
	encoded := EncodeLearning(LearningSnapshot{Weights: LearningWeights{Vector: 1}})
	encoded[0] = 0xFF
	encoded[1] = 0xFF
	_, err := DecodeLearning(encoded)
	require.Error(t, err)
}

func TestDecodeVolumes_TruncatedStreamIsCorruption(t *testing.T) {
	_, err := DecodeVolumes([]byte{0, 0, 0, 5, 'h', 'e'})
	require.Error(t, err)
}
