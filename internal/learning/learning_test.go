package learning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQuery_IgnoresEmptyEmbeddingOrResults(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery(nil, []string{"a"})
	e.RecordQuery([]float32{1, 2}, nil)
	assert.Equal(t, uint64(0), e.TotalQueries())
}

func TestRecordQuery_TracksTotalsAndDistinctCounts(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery([]float32{1, 0}, []string{"a", "b"})
	e.RecordQuery([]float32{0, 1}, []string{"a"})

	assert.Equal(t, uint64(2), e.TotalQueries())

	_, _, _, feedback := e.Snapshot()
	require.Contains(t, feedback, "a")
	assert.Equal(t, uint64(2), feedback["a"].TotalRetrievals)
	assert.Equal(t, uint64(1), feedback["b"].TotalRetrievals)
}

func TestWeights_SumToOneAfterAdaptation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptEvery = 2
	e := New(cfg)

	e.RecordQuery([]float32{1, 0}, []string{"a"})
	e.RecordFeedback("a", true)
	e.RecordQuery([]float32{1, 0}, []string{"a"})

	w := e.Weights()
	sum := w.Vector + w.Recency + w.Frequency + w.Text
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestWeights_StayWithinClampBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AdaptEvery = 1
	e := New(cfg)

	for i := 0; i < 50; i++ {
		e.RecordFeedback("a", true)
		e.RecordQuery([]float32{1, 0}, []string{"a"})
	}

	w := e.Weights()
	for _, component := range []float64{w.Vector, w.Recency, w.Frequency, w.Text} {
		assert.GreaterOrEqual(t, component, minWeight-1e-9)
		assert.LessOrEqual(t, component, maxWeight+1e-9)
	}
}

func TestComputeBoost_DisabledEngineReturnsOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	e := New(cfg)
	assert.Equal(t, 1.0, e.ComputeBoost("a", []float32{1, 2}))
}

func TestComputeBoost_UnknownEntryReturnsOne(t *testing.T) {
	e := New(DefaultConfig())
	assert.Equal(t, 1.0, e.ComputeBoost("unknown", []float32{1, 2}))
}

func TestComputeBoost_StaysWithinBounds(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery([]float32{1, 0}, []string{"a"})
	boost := e.ComputeBoost("a", []float32{1, 0})
	assert.GreaterOrEqual(t, boost, 0.8)
	assert.LessOrEqual(t, boost, 1.2)
}

func TestPruneEntries_DropsDeadFeedback(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery([]float32{1, 0}, []string{"a", "b"})
	e.PruneEntries([]string{"a"})

	_, _, _, feedback := e.Snapshot()
	assert.Contains(t, feedback, "a")
	assert.NotContains(t, feedback, "b")
}

func TestSnapshotRestore_RoundTrips(t *testing.T) {
	e := New(DefaultConfig())
	e.RecordQuery([]float32{1, 0}, []string{"a"})
	e.RecordFeedback("a", true)

	totalQueries, weights, history, feedback := e.Snapshot()

	restored := New(DefaultConfig())
	restored.Restore(totalQueries, weights, history, feedback)

	assert.Equal(t, totalQueries, restored.TotalQueries())
	assert.Equal(t, weights, restored.Weights())
}

func TestRecordQuery_TrimsHistoryToMaxLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueryHistory = 3
	e := New(cfg)

	for i := 0; i < 10; i++ {
		e.RecordQuery([]float32{float32(i), 0}, []string{"a"})
	}

	_, _, history, _ := e.Snapshot()
	assert.Len(t, history, 3)
}

func TestDisabledEngine_WritersAreNoOps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	e := New(cfg)

	e.RecordQuery([]float32{1, 0}, []string{"a"})
	e.RecordFeedback("a", true)

	assert.Equal(t, uint64(0), e.TotalQueries())
}

func TestRecencySignal_DecaysOverHalfLife(t *testing.T) {
	now := time.Unix(1000, 0)
	cfg := DefaultConfig()
	cfg.RecencyHalfLife = time.Hour
	cfg.Clock = func() time.Time { return now }
	e := New(cfg)

	e.RecordQuery([]float32{1, 0}, []string{"a"})
	boostFresh := e.ComputeBoost("a", []float32{1, 0})

	now = now.Add(10 * time.Hour)
	boostStale := e.ComputeBoost("a", []float32{1, 0})

	assert.GreaterOrEqual(t, boostFresh, boostStale)
}
