package metaindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch_BetweenReturnsExactlyEntriesInRange(t *testing.T) {
	idx := New()
	idx.Add("high", map[string]string{"score": "10"})
	idx.Add("mid", map[string]string{"score": "5"})
	idx.Add("low", map[string]string{"score": "1"})

	got := idx.Match([]Filter{{Key: "score", Operator: OpBetween, Values: []string{"3", "8"}}})
	assert.Equal(t, []string{"mid"}, got)
}

func TestMatch_EqMatchesExactValue(t *testing.T) {
	idx := New()
	idx.Add("a", map[string]string{"status": "active"})
	idx.Add("b", map[string]string{"status": "archived"})

	got := idx.Match([]Filter{{Key: "status", Operator: OpEq, Value: "active"}})
	assert.Equal(t, []string{"a"}, got)
}

func TestMatch_NeExcludesMatchingValue(t *testing.T) {
	idx := New()
	idx.Add("a", map[string]string{"status": "active"})
	idx.Add("b", map[string]string{"status": "archived"})

	got := idx.Match([]Filter{{Key: "status", Operator: OpNe, Value: "active"}})
	assert.Equal(t, []string{"b"}, got)
}

func TestMatch_ContainsIsCaseInsensitive(t *testing.T) {
	idx := New()
	idx.Add("a", map[string]string{"title": "Rust Programming"})
	got := idx.Match([]Filter{{Key: "title", Operator: OpContains, Value: "PROGRAM"}})
	assert.Equal(t, []string{"a"}, got)
}

func TestMatch_InAndNotIn(t *testing.T) {
	idx := New()
	idx.Add("a", map[string]string{"lang": "rust"})
	idx.Add("b", map[string]string{"lang": "python"})
	idx.Add("c", map[string]string{"lang": "cobol"})

	in := idx.Match([]Filter{{Key: "lang", Operator: OpIn, Values: []string{"rust", "python"}}})
	assert.ElementsMatch(t, []string{"a", "b"}, in)

	notIn := idx.Match([]Filter{{Key: "lang", Operator: OpNotIn, Values: []string{"rust", "python"}}})
	assert.Equal(t, []string{"c"}, notIn)
}

func TestMatch_MultipleFiltersCombineWithAnd(t *testing.T) {
	idx := New()
	idx.Add("a", map[string]string{"lang": "rust", "score": "10"})
	idx.Add("b", map[string]string{"lang": "rust", "score": "1"})

	got := idx.Match([]Filter{
		{Key: "lang", Operator: OpEq, Value: "rust"},
		{Key: "score", Operator: OpGte, Value: "5"},
	})
	assert.Equal(t, []string{"a"}, got)
}

func TestMatch_NumericComparisonFailsClosedOnUnparsable(t *testing.T) {
	idx := New()
	idx.Add("a", map[string]string{"score": "not-a-number"})
	got := idx.Match([]Filter{{Key: "score", Operator: OpGt, Value: "5"}})
	assert.Empty(t, got)
}

func TestRemove_UndoesIndexing(t *testing.T) {
	idx := New()
	meta := map[string]string{"status": "active"}
	idx.Add("a", meta)
	idx.Remove("a", meta)

	got := idx.Match([]Filter{{Key: "status", Operator: OpEq, Value: "active"}})
	assert.Empty(t, got)
}
