// Package pruner implements the conversation-side context pruning
// utility: given an ordered message list, it compacts old tool-result
// messages beyond a protected recency window and beyond the most recent
// summary barrier, leaving the recently-relevant context untouched. It
// has no dependency on the rest of the engine — it operates purely on
// the message shape a host program's agent loop already has in memory.
package pruner

import "fmt"

// Message is one turn of a conversation. Role follows the host program's
// own convention ("user", "assistant", "tool_result", ...); ToolCallID
// and ToolName are only meaningful for tool_result messages.
type Message struct {
	Role        string
	Content     string
	ToolCallID  string
	ToolName    string
	TimestampMs int64
}

// DefaultProtectRecentTurns is the number of most-recent user turns
// that are never pruned.
const DefaultProtectRecentTurns = 2

// DefaultPruneThreshold is the minimum tool_result content length, in
// bytes, eligible for pruning.
const DefaultPruneThreshold = 200

const summaryMarker = "[SUMMARY]"

// Options configures Prune.
type Options struct {
	// ProtectRecentTurns is the number of most recent user turns (and
	// everything after the first of them) that are never pruned.
	// <= 0 falls back to DefaultProtectRecentTurns.
	ProtectRecentTurns int

	// PruneProtectedTools names tool results that are never pruned
	// regardless of age or length (e.g. a tool whose output must stay
	// verbatim for correctness).
	PruneProtectedTools []string

	// MinContentLength is the minimum tool_result content length
	// eligible for pruning. <= 0 falls back to DefaultPruneThreshold.
	MinContentLength int
}

// Prune compacts old tool_result messages in messages: it finds the
// later of (a) the start of the last ProtectRecentTurns user turns and
// (b) the most recent assistant message containing a [SUMMARY] marker,
// and replaces the content of any tool_result message before that
// barrier whose content is at least MinContentLength bytes and whose
// ToolName is not in PruneProtectedTools with a
// "[OUTPUT PRUNED — N chars]" placeholder, preserving ToolCallID,
// ToolName, and TimestampMs. If nothing was pruned, messages is
// returned unchanged by identity.
func Prune(messages []Message, opts Options) []Message {
	protectTurns := opts.ProtectRecentTurns
	if protectTurns <= 0 {
		protectTurns = DefaultProtectRecentTurns
	}
	minLen := opts.MinContentLength
	if minLen <= 0 {
		minLen = DefaultPruneThreshold
	}
	protected := make(map[string]struct{}, len(opts.PruneProtectedTools))
	for _, name := range opts.PruneProtectedTools {
		protected[name] = struct{}{}
	}

	barrier := recentTurnBarrier(messages, protectTurns)
	if sb := summaryBarrier(messages); sb > barrier {
		barrier = sb
	}

	var out []Message
	prunedAny := false
	for i, m := range messages {
		if i >= barrier || !eligibleForPrune(m, minLen, protected) {
			if out != nil {
				out = append(out, m)
			}
			continue
		}
		if out == nil {
			out = append(out, messages[:i]...)
		}
		pruned := m
		pruned.Content = fmt.Sprintf("[OUTPUT PRUNED — %d chars]", len(m.Content))
		out = append(out, pruned)
		prunedAny = true
	}

	if !prunedAny {
		return messages
	}
	return out
}

func eligibleForPrune(m Message, minLen int, protected map[string]struct{}) bool {
	if m.Role != "tool_result" {
		return false
	}
	if len(m.Content) < minLen {
		return false
	}
	if _, ok := protected[m.ToolName]; ok {
		return false
	}
	return true
}

// recentTurnBarrier returns the index of the start of the last n user
// turns. Fewer than n user turns in the whole conversation protects
// everything (barrier 0).
func recentTurnBarrier(messages []Message, n int) int {
	var userIdx []int
	for i, m := range messages {
		if m.Role == "user" {
			userIdx = append(userIdx, i)
		}
	}
	if len(userIdx) < n {
		return 0
	}
	return userIdx[len(userIdx)-n]
}

// summaryBarrier returns the index of the most recent assistant message
// containing a [SUMMARY] marker, or 0 if none exists.
func summaryBarrier(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Role == "assistant" && containsMarker(m.Content) {
			return i
		}
	}
	return 0
}

func containsMarker(s string) bool {
	return len(s) >= len(summaryMarker) && indexOf(s, summaryMarker) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
