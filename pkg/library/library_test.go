package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/patronlib/librarystack/internal/stacks"
	"github.com/patronlib/librarystack/internal/staticembed"
	"github.com/patronlib/librarystack/internal/testsupport"
	"github.com/patronlib/librarystack/pkg/liberr"
	"github.com/patronlib/librarystack/pkg/library"
)

func newTestLibrary(t *testing.T) *library.Library {
	t.Helper()
	cfg := library.DefaultConfig()
	cfg.StorageDir = t.TempDir()
	cfg.Store.FlushInterval = 0

	lib, err := library.New(cfg, testsupport.NewStubEmbedder(8), testsupport.NewStubGenerator(`{}`), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Dispose(context.Background()) })
	return lib
}

func TestLibrary_AddAndSearchRoundTrip(t *testing.T) {
	lib := newTestLibrary(t)

	id, err := lib.Add(context.Background(), "rust programming language systems", map[string]string{"topic": "programming/rust"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	results, err := lib.Search(context.Background(), "rust programming language systems", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, id, results[0].Volume.ID)
}

func TestLibrary_SearchEmptyQueryReturnsEmptyWithoutEmbedding(t *testing.T) {
	lib := newTestLibrary(t)

	results, err := lib.Search(context.Background(), "   ", 5, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestLibrary_AddEmbeddingFailurePropagates(t *testing.T) {
	cfg := library.DefaultConfig()
	cfg.StorageDir = t.TempDir()
	embedder := testsupport.NewStubEmbedder(8)
	embedder.Err = assertErr{}

	lib, err := library.New(cfg, embedder, testsupport.NewStubGenerator(""), nil)
	require.NoError(t, err)
	defer lib.Dispose(context.Background())

	_, err = lib.Add(context.Background(), "text", nil)
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "embedding failed" }

func TestLibrary_AdvancedSearchFallsBackWhenEmbeddingFails(t *testing.T) {
	cfg := library.DefaultConfig()
	cfg.StorageDir = t.TempDir()
	embedder := testsupport.NewStubEmbedder(8)

	lib, err := library.New(cfg, embedder, testsupport.NewStubGenerator(""), nil)
	require.NoError(t, err)
	defer lib.Dispose(context.Background())

	_, err = lib.Add(context.Background(), "cooking italian pasta", map[string]string{"topic": "cooking"})
	require.NoError(t, err)

	embedder.Err = assertErr{}
	results, err := lib.AdvancedSearch(context.Background(), stacks.AdvancedSearchOptions{
		Text: "cooking", MaxResults: 10, RankBy: stacks.RankByText,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestLibrary_EnrichSystemPromptFailureReturnsOriginal(t *testing.T) {
	cfg := library.DefaultConfig()
	cfg.StorageDir = t.TempDir()
	embedder := testsupport.NewStubEmbedder(8)
	embedder.Err = assertErr{}

	lib, err := library.New(cfg, embedder, testsupport.NewStubGenerator(""), nil)
	require.NoError(t, err)
	defer lib.Dispose(context.Background())

	prompt := "you are a helpful assistant"
	got := lib.EnrichSystemPrompt(context.Background(), prompt, "anything")
	require.Equal(t, prompt, got)
}

func TestLibrary_AfterResponseIgnoresEmptyAndErrorResponses(t *testing.T) {
	lib := newTestLibrary(t)

	lib.AfterResponse("", "some response")
	lib.AfterResponse("hello", "Error: something went wrong")
	require.Equal(t, 0, lib.Desk().QueueDepth())

	lib.AfterResponse("hello", "a normal useful response")
	require.Eventually(t, func() bool { return lib.Desk().QueueDepth() == 0 }, time.Second, 10*time.Millisecond)
}

func TestLibrary_DisposeIsIdempotentAndBlocksFurtherCalls(t *testing.T) {
	lib := newTestLibrary(t)

	require.NoError(t, lib.Dispose(context.Background()))
	require.NoError(t, lib.Dispose(context.Background()))

	_, err := lib.Add(context.Background(), "text", nil)
	require.Error(t, err)
}

func TestLibrary_QuerySearchParsesDSL(t *testing.T) {
	lib := newTestLibrary(t)

	_, err := lib.Add(context.Background(), "rust programming language systems", map[string]string{"topic": "programming/rust"})
	require.NoError(t, err)

	results, err := lib.QuerySearch(context.Background(), "text:rust topic:programming", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestLibrary_AddBatchRejectsEmptyTextWithBatchIndex(t *testing.T) {
	lib := newTestLibrary(t)

	_, err := lib.AddBatch(context.Background(), []library.BatchItem{
		{Text: "first"},
		{Text: ""},
		{Text: "third"},
	})
	require.Error(t, err)
	var le *liberr.LibraryError
	require.ErrorAs(t, err, &le)
	require.Equal(t, liberr.KindMemoryEmptyText, le.Kind)
	require.Equal(t, "1", le.Details["batchIndex"])
	require.Equal(t, 0, lib.Count())
}

func TestLibrary_AddBatchStoresEveryItem(t *testing.T) {
	lib := newTestLibrary(t)

	ids, err := lib.AddBatch(context.Background(), []library.BatchItem{
		{Text: "alpha", Metadata: map[string]string{"topic": "letters"}},
		{Text: "beta", Metadata: map[string]string{"topic": "letters"}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Equal(t, 2, lib.Count())
}

func TestLibrary_ShelfGroupsByTag(t *testing.T) {
	lib := newTestLibrary(t)

	_, err := lib.Add(context.Background(), "rust ownership notes", map[string]string{"tags": "rust,memory"})
	require.NoError(t, err)
	_, err = lib.Add(context.Background(), "python asyncio notes", map[string]string{"tags": "python"})
	require.NoError(t, err)

	shelf := lib.Shelf("rust")
	require.Len(t, shelf, 1)
	require.Equal(t, "rust ownership notes", shelf[0].Text)

	require.Equal(t, []string{"memory", "python", "rust"}, lib.Shelves())
}

func TestLibrary_CheckDuplicateDetectsNearIdenticalText(t *testing.T) {
	cfg := library.DefaultConfig()
	cfg.StorageDir = t.TempDir()
	cfg.Store.FlushInterval = 0
	cfg.Store.DuplicateThreshold = 0.9

	lib, err := library.New(cfg, staticembed.New(), testsupport.NewStubGenerator(`{}`), nil)
	require.NoError(t, err)
	defer lib.Dispose(context.Background())

	_, err = lib.Add(context.Background(), "TypeScript is a typed superset of JavaScript", nil)
	require.NoError(t, err)

	result, err := lib.CheckDuplicate(context.Background(), "TypeScript is a typed superset of JavaScript language")
	require.NoError(t, err)
	require.True(t, result.IsDuplicate)
	require.Greater(t, result.Similarity, 0.8)
}

func TestLibrary_LearningSurvivesDisposeAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := library.DefaultConfig()
	cfg.StorageDir = dir
	cfg.Store.FlushInterval = 0

	lib, err := library.New(cfg, staticembed.New(), testsupport.NewStubGenerator(`{}`), nil)
	require.NoError(t, err)

	id, err := lib.Add(context.Background(), "important design decision", nil)
	require.NoError(t, err)

	results, err := lib.Search(context.Background(), "important", 5, -1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	lib.RecordFeedback(id, true)
	require.NoError(t, lib.Flush())
	require.NoError(t, lib.Dispose(context.Background()))

	reloaded, err := library.New(cfg, staticembed.New(), testsupport.NewStubGenerator(`{}`), nil)
	require.NoError(t, err)
	defer reloaded.Dispose(context.Background())

	require.GreaterOrEqual(t, reloaded.Patron().TotalQueries, uint64(1))
	v, ok := reloaded.GetByID(id)
	require.True(t, ok)
	require.Equal(t, "important design decision", v.Text)
}
