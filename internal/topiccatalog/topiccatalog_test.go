package topiccatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterVolume_MaterializesAncestors(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "programming/rust/ownership")

	topics := cat.Topics()
	assert.Contains(t, topics, "programming")
	assert.Contains(t, topics, "programming/rust")
	assert.Contains(t, topics, "programming/rust/ownership")
}

func TestFilterByTopic_IncludesDescendants(t *testing.T) {
	cat := New()
	cat.RegisterVolume("rust-entry", "programming/rust/ownership")
	cat.RegisterVolume("python-entry", "programming/python/async")
	cat.RegisterVolume("cooking-entry", "cooking/italian")

	under := cat.FilterByTopic("programming")
	assert.ElementsMatch(t, []string{"rust-entry", "python-entry"}, under)

	exact := cat.FilterByTopic("programming/rust/ownership")
	assert.Equal(t, []string{"rust-entry"}, exact)
}

func TestResolve_ExactMatchReturnsItself(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "programming/rust")
	assert.Equal(t, "programming/rust", cat.Resolve("programming/rust"))
}

func TestResolve_FuzzyMatchesNearTypo(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "programming")
	got := cat.Resolve("programing")
	assert.Equal(t, "programming", got)
}

func TestResolve_BelowThresholdRegistersNewTopic(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "programming")
	got := cat.Resolve("cooking")
	assert.Equal(t, "cooking", got)
	assert.Contains(t, cat.Topics(), "cooking")
}

func TestAlias_ResolvesToCanonical(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "programming")
	cat.Alias("coding", "programming")
	assert.Equal(t, "programming", cat.Resolve("coding"))
}

func TestRelocate_MovesVolumeToNewTopic(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "programming")
	cat.Relocate("v1", "cooking")

	assert.Empty(t, cat.FilterByTopic("programming"))
	assert.Equal(t, []string{"v1"}, cat.FilterByTopic("cooking"))
}

func TestMerge_MovesVolumesAndAliasesSource(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "old-topic")
	cat.RegisterVolume("v2", "new-topic")

	cat.Merge("old-topic", "new-topic")

	assert.ElementsMatch(t, []string{"v1", "v2"}, cat.FilterByTopic("new-topic"))
	assert.Equal(t, "new-topic", cat.Resolve("old-topic"))
}

func TestUnregister_RemovesVolumeFromTopic(t *testing.T) {
	cat := New()
	cat.RegisterVolume("v1", "programming")
	cat.Unregister("v1")

	_, ok := cat.TopicOf("v1")
	assert.False(t, ok)
	assert.Empty(t, cat.FilterByTopic("programming"))
}
