package bm25index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_RustAndPythonRankAboveCooking(t *testing.T) {
	idx := New()
	idx.Add("rust", "rust programming language systems")
	idx.Add("python", "python programming language scripting")
	idx.Add("cooking", "cooking italian pasta recipes")

	hits := idx.Search("programming")
	require.Len(t, hits, 2)

	ids := map[string]bool{}
	for _, h := range hits {
		ids[h.DocID] = true
		assert.Greater(t, h.Score, 0.0)
	}
	assert.True(t, ids["rust"])
	assert.True(t, ids["python"])
	assert.False(t, ids["cooking"])
}

func TestSearch_EmptyQueryReturnsNil(t *testing.T) {
	idx := New()
	idx.Add("a", "some text")
	assert.Nil(t, idx.Search("   "))
}

func TestSearch_EmptyIndexReturnsNil(t *testing.T) {
	idx := New()
	assert.Nil(t, idx.Search("anything"))
}

func TestSearch_TieBrokenByLaterInsertion(t *testing.T) {
	idx := New()
	idx.Add("first", "shared term here")
	idx.Add("second", "shared term here")

	hits := idx.Search("shared term here")
	require.Len(t, hits, 2)
	assert.InDelta(t, hits[0].Score, hits[1].Score, 1e-9)
	assert.Equal(t, "second", hits[0].DocID)
}

func TestRemove_ReversesDocumentStatistics(t *testing.T) {
	idx := New()
	idx.Add("a", "alpha beta gamma")
	idx.Add("b", "alpha beta gamma")
	idx.Remove("a")

	assert.Equal(t, 1, idx.DocCount())
	hits := idx.Search("alpha")
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].DocID)
}

func TestNormalize_MinMaxScalesIntoZeroOne(t *testing.T) {
	hits := []Hit{{DocID: "a", Score: 4}, {DocID: "b", Score: 2}, {DocID: "c", Score: 0}}
	norm := Normalize(hits)
	assert.Equal(t, 1.0, norm[0].Score)
	assert.Equal(t, 0.5, norm[1].Score)
	assert.Equal(t, 0.0, norm[2].Score)
}

func TestNormalize_FlatScoresMapToOne(t *testing.T) {
	hits := []Hit{{DocID: "a", Score: 3}, {DocID: "b", Score: 3}}
	norm := Normalize(hits)
	for _, h := range norm {
		assert.Equal(t, 1.0, h.Score)
	}
}

func TestAverageDocLength_ComputesMeanTokenCount(t *testing.T) {
	idx := New()
	idx.Add("a", "one two three")
	idx.Add("b", "four five")
	assert.InDelta(t, 2.5, idx.AverageDocLength(), 1e-9)
}
