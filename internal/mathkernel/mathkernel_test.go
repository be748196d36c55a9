package mathkernel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosine_IdenticalVectorIsOne(t *testing.T) {
	v := []float32{1, 2, 3, 4}
	got := Cosine(v, v, 0, 0)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestCosine_OrthogonalVectorsAreZero(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, Cosine(a, b, 0, 0), 1e-9)
}

func TestCosine_OppositeVectorsAreNegativeOne(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	assert.InDelta(t, -1.0, Cosine(a, b, 0, 0), 1e-9)
}

func TestCosine_ZeroMagnitudeReturnsZero(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	assert.Equal(t, 0.0, Cosine(a, b, 0, 0))
}

func TestCosine_UsesSuppliedMagnitudesWhenPositive(t *testing.T) {
	a := []float32{3, 4}
	b := []float32{3, 4}
	got := Cosine(a, b, 5, 5)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestCosine_PanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() {
		Cosine([]float32{1, 2}, []float32{1, 2, 3}, 0, 0)
	})
}

func TestDot_PanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() {
		Dot([]float32{1}, []float32{1, 2})
	})
}

func TestMagnitude_MatchesEuclideanNorm(t *testing.T) {
	got := Magnitude([]float32{3, 4})
	assert.InDelta(t, 5.0, got, 1e-9)
}

func TestNormalize_ProducesUnitVector(t *testing.T) {
	out := Normalize([]float32{3, 4})
	assert.InDelta(t, 1.0, Magnitude(out), 1e-6)
	assert.InDelta(t, float64(0.6), float64(out[0]), 1e-6)
	assert.InDelta(t, float64(0.8), float64(out[1]), 1e-6)
}

func TestNormalize_ZeroVectorStaysZero(t *testing.T) {
	out := Normalize([]float32{0, 0, 0})
	for _, x := range out {
		assert.Equal(t, float32(0), x)
	}
}

func TestDot_KnownValue(t *testing.T) {
	got := Dot([]float32{1, 2, 3}, []float32{4, 5, 6})
	assert.InDelta(t, float64(32), got, 1e-9)
}

func TestCosine_NotExactlyOneForNonParallelVectors(t *testing.T) {
	a := []float32{1, 1, 0}
	b := []float32{1, 0, 0}
	got := Cosine(a, b, 0, 0)
	assert.True(t, got < 1 && got > 0)
	assert.InDelta(t, 1/math.Sqrt2, got, 1e-9)
}
