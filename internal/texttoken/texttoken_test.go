package texttoken

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlib/librarystack/pkg/liberr"
)

func TestTokenize_SplitsOnNonAlphanumericAndUnderscore(t *testing.T) {
	got := Tokenize("Rust_Programming, Language!!  123")
	assert.Equal(t, []string{"rust", "programming", "language", "123"}, got)
}

func TestTokenize_DiscardsEmptyTokens(t *testing.T) {
	got := Tokenize("   ,,,   ")
	assert.Empty(t, got)
}

func TestSimilarity_IdenticalStringsIsOne(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("hello", "hello"))
}

func TestSimilarity_BothEmptyIsOne(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
}

func TestSimilarity_CompletelyDifferentIsLow(t *testing.T) {
	sim := Similarity("abc", "xyz")
	assert.Equal(t, 0.0, sim)
}

func TestSimilarity_OneEditAwayIsHigh(t *testing.T) {
	sim := Similarity("kitten", "kitten1")
	assert.InDelta(t, 6.0/7.0, sim, 1e-9)
}

func TestScore_SubstringContainment(t *testing.T) {
	s, err := Score(ModeSubstring, "prog", "Rust Programming Language")
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)

	s, err = Score(ModeSubstring, "xyz", "Rust Programming Language")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)
}

func TestScore_ExactTokenEquality(t *testing.T) {
	s, err := Score(ModeExact, "rust", "rust programming language")
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)

	s, err = Score(ModeExact, "rus", "rust programming language")
	require.NoError(t, err)
	assert.Equal(t, 0.0, s)
}

func TestScore_FuzzyBestTokenMatch(t *testing.T) {
	s, err := Score(ModeFuzzy, "progra", "rust programming language")
	require.NoError(t, err)
	assert.Greater(t, s, DefaultFuzzyThreshold())
}

func TestScore_TokenOverlapRatio(t *testing.T) {
	s, err := Score(ModeTokenOverlap, "rust language fortran", "rust programming language")
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, s, 1e-9)
}

func TestScore_RegexMatchesAndRejectsOverLongPattern(t *testing.T) {
	s, err := Score(ModeRegex, "^rust.*lang", "rust programming language")
	require.NoError(t, err)
	assert.Equal(t, 1.0, s)

	longPattern := strings.Repeat("a", MaxPatternLength+1)
	_, err = Score(ModeRegex, longPattern, "anything")
	require.Error(t, err)
	assert.Equal(t, liberr.KindInvalidPattern, liberr.Of(err))
}

func TestScore_RegexInvalidPatternFails(t *testing.T) {
	_, err := Score(ModeRegex, "(unclosed", "anything")
	require.Error(t, err)
	assert.Equal(t, liberr.KindInvalidPattern, liberr.Of(err))
}
