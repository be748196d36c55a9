package staticembed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProvider_DeterministicAndNormalized(t *testing.T) {
	p := New()

	res1, err := p.Embed(context.Background(), []string{"rust programming language"}, "")
	require.NoError(t, err)
	res2, err := p.Embed(context.Background(), []string{"rust programming language"}, "")
	require.NoError(t, err)

	require.Equal(t, res1.Embeddings[0], res2.Embeddings[0])
	require.Len(t, res1.Embeddings[0], Dimensions)

	var sumSq float64
	for _, x := range res1.Embeddings[0] {
		sumSq += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestProvider_DistinctTextsDiffer(t *testing.T) {
	p := New()
	a, _ := p.Embed(context.Background(), []string{"rust programming"}, "")
	b, _ := p.Embed(context.Background(), []string{"cooking pasta"}, "")
	require.NotEqual(t, a.Embeddings[0], b.Embeddings[0])
}

func TestProvider_EmptyTextReturnsZeroVector(t *testing.T) {
	p := New()
	res, err := p.Embed(context.Background(), []string{"   "}, "")
	require.NoError(t, err)
	for _, x := range res.Embeddings[0] {
		require.Zero(t, x)
	}
}

func TestProvider_ClosedReturnsPermanentError(t *testing.T) {
	p := New()
	p.Close()
	_, err := p.Embed(context.Background(), []string{"x"}, "")
	require.Error(t, err)
}

func TestProvider_BatchPreservesOrder(t *testing.T) {
	p := New()
	res, err := p.Embed(context.Background(), []string{"alpha", "beta", "gamma"}, "")
	require.NoError(t, err)
	require.Len(t, res.Embeddings, 3)
	single, _ := p.Embed(context.Background(), []string{"beta"}, "")
	require.Equal(t, single.Embeddings[0], res.Embeddings[1])
}
