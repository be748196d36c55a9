package librarian_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlib/librarystack/internal/testsupport"
	"github.com/patronlib/librarystack/pkg/librarian"
)

func newLibrarian(t *testing.T, response string) (*librarian.Librarian, *testsupport.StubGenerator) {
	t.Helper()
	gen := testsupport.NewStubGenerator(response)
	lib := librarian.New(librarian.Identity{Name: "default", Topics: []string{"programming"}}, gen, nil)
	return lib, gen
}

func TestExtract_ParsesWellFormedJSON(t *testing.T) {
	lib, _ := newLibrarian(t, `{"memories": [{"text": "rust ownership rules", "topic": "programming/rust", "tags": ["rust"], "entryType": "extracted"}]}`)
	res, err := lib.Extract(context.Background(), "explain ownership", "rust ownership rules")
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, "rust ownership rules", res.Memories[0].Text)
	assert.Equal(t, "programming/rust", res.Memories[0].Topic)
}

func TestExtract_MalformedJSONReturnsSafeDefault(t *testing.T) {
	lib, _ := newLibrarian(t, "not json at all")
	res, err := lib.Extract(context.Background(), "x", "y")
	require.NoError(t, err)
	assert.Empty(t, res.Memories)
}

func TestExtract_ToleratesMarkdownFence(t *testing.T) {
	lib, _ := newLibrarian(t, "```json\n{\"memories\": [{\"text\": \"fenced\"}]}\n```")
	res, err := lib.Extract(context.Background(), "x", "y")
	require.NoError(t, err)
	require.Len(t, res.Memories, 1)
	assert.Equal(t, "fenced", res.Memories[0].Text)
}

func TestExtract_ProviderFailurePropagates(t *testing.T) {
	lib, gen := newLibrarian(t, "")
	gen.Err = assert.AnError
	_, err := lib.Extract(context.Background(), "x", "y")
	require.Error(t, err)
}

func TestSummarize_TooFewVolumesErrors(t *testing.T) {
	lib, _ := newLibrarian(t, `{"summary": "x"}`)
	_, err := lib.Summarize(context.Background(), []librarian.VolumeView{{Text: "one"}}, "topic")
	require.Error(t, err)
}

func TestSummarize_MalformedResponseIsEmptyNotError(t *testing.T) {
	lib, _ := newLibrarian(t, "garbage")
	res, err := lib.Summarize(context.Background(), []librarian.VolumeView{{Text: "a"}, {Text: "b"}}, "topic")
	require.NoError(t, err)
	assert.Empty(t, res.Summary)
}

func TestBid_ClampsConfidence(t *testing.T) {
	lib, _ := newLibrarian(t, `{"name": "default", "argument": "fits my scope", "confidence": 1.5}`)
	bid, err := lib.Bid(context.Background(), "content", "programming", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, bid.Confidence)
}

func TestReorganize_ParsesMovesAndMerges(t *testing.T) {
	lib, _ := newLibrarian(t, `{"moves":[{"volumeId":"v1","newTopic":"programming/go"}],"newSubtopics":["programming/go"],"merges":[{"source":"golang","target":"programming/go"}]}`)
	plan, err := lib.Reorganize(context.Background(), "programming", nil)
	require.NoError(t, err)
	require.Len(t, plan.Moves, 1)
	assert.Equal(t, "v1", plan.Moves[0].VolumeID)
	require.Len(t, plan.Merges, 1)
	assert.Equal(t, "golang", plan.Merges[0].Source)
}

func TestOptimize_RoutesToModelWhenRequested(t *testing.T) {
	gen := testsupport.NewStubGenerator("")
	gen.GenerateFn = func(prompt, systemPrompt string) string {
		return `{"pruned":["v1"],"summary":"condensed","reorganization":{"moves":[],"newSubtopics":[],"merges":[]}}`
	}
	lib := librarian.New(librarian.Identity{Name: "opt"}, gen, nil)
	res, err := lib.Optimize(context.Background(), nil, "topic", "gpt-special")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, res.Pruned)
	assert.Equal(t, "condensed", res.Summary)
}

func TestHasTopic_MatchesExactAndDescendant(t *testing.T) {
	id := librarian.Identity{Topics: []string{"programming"}}
	assert.True(t, id.HasTopic("programming"))
	assert.True(t, id.HasTopic("programming/rust"))
	assert.False(t, id.HasTopic("cooking"))
}
