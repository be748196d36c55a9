package pruner_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patronlib/librarystack/pkg/pruner"
)

func repeat(n int) string { return strings.Repeat("x", n) }

// TestPrune_LiteralScenario walks the canonical two-turn pruning case.
func TestPrune_LiteralScenario(t *testing.T) {
	messages := []pruner.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "ok"},
		{Role: "tool_result", Content: repeat(500), ToolCallID: "call-1", ToolName: "search"},
		{Role: "assistant", Content: "found it"},
		{Role: "user", Content: "more"},
		{Role: "assistant", Content: "sure"},
		{Role: "tool_result", Content: repeat(300), ToolCallID: "call-2", ToolName: "search"},
		{Role: "assistant", Content: "done"},
	}

	out := pruner.Prune(messages, pruner.Options{ProtectRecentTurns: 1})

	require.Len(t, out, len(messages))
	assert.Equal(t, "[OUTPUT PRUNED — 500 chars]", out[2].Content)
	assert.Equal(t, "call-1", out[2].ToolCallID)
	assert.Equal(t, "search", out[2].ToolName)
	assert.Equal(t, repeat(300), out[6].Content, "second tool_result falls after the barrier and must be untouched")
}

func TestPrune_NothingToPruneReturnsIdentity(t *testing.T) {
	messages := []pruner.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "ok"},
		{Role: "tool_result", Content: repeat(50), ToolName: "search"},
	}
	out := pruner.Prune(messages, pruner.Options{})
	require.Same(t, &messages[0], &out[0])
}

func TestPrune_ProtectedToolNeverPruned(t *testing.T) {
	messages := []pruner.Message{
		{Role: "user", Content: "hi"},
		{Role: "tool_result", Content: repeat(500), ToolName: "critical"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "again"},
		{Role: "user", Content: "again2"},
		{Role: "user", Content: "again3"},
	}
	out := pruner.Prune(messages, pruner.Options{ProtectRecentTurns: 1, PruneProtectedTools: []string{"critical"}})
	assert.Equal(t, messages, out)
}

func TestPrune_SummaryBarrierWins(t *testing.T) {
	messages := []pruner.Message{
		{Role: "user", Content: "go"},
		{Role: "tool_result", Content: repeat(500), ToolName: "search"},
		{Role: "assistant", Content: "recap [SUMMARY] of everything"},
		{Role: "tool_result", Content: repeat(500), ToolName: "search"},
	}
	out := pruner.Prune(messages, pruner.Options{ProtectRecentTurns: 1})
	assert.Equal(t, "[OUTPUT PRUNED — 500 chars]", out[1].Content)
	assert.Equal(t, repeat(500), out[3].Content, "tool_result after the summary barrier must survive")
}

func TestPrune_IdempotentOnSecondApplication(t *testing.T) {
	messages := []pruner.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "ok"},
		{Role: "tool_result", Content: repeat(500), ToolCallID: "call-1", ToolName: "search"},
		{Role: "assistant", Content: "found it"},
		{Role: "user", Content: "more"},
		{Role: "assistant", Content: "sure"},
	}
	once := pruner.Prune(messages, pruner.Options{ProtectRecentTurns: 1})
	twice := pruner.Prune(once, pruner.Options{ProtectRecentTurns: 1})
	assert.Equal(t, once, twice)
}
