// Package librarian implements the prompted-LLM wrappers that drive the
// Circulation Desk: extract, summarize, classifyTopic, reorganize,
// optimize, and bid, each a single prompt round trip against a
// capability.TextGenerationProvider whose JSON response is decoded
// defensively through a strict tagged struct — malformed or partial
// JSON yields that operation's documented safe default rather than
// propagating a parse error. The errors that do propagate are provider
// call failures, prompt template failures, and Summarize's check for at
// least two volumes.
package librarian

import (
	"context"
	"io"
	"log/slog"

	"github.com/patronlib/librarystack/pkg/capability"
	"github.com/patronlib/librarystack/pkg/liberr"
)

// VolumeView is the read-only projection of a stored volume a Librarian
// operates over. It is a standalone type (not internal/stacks.Volume) so
// this package has no dependency on the store's internal representation.
type VolumeView struct {
	ID          string
	Text        string
	Metadata    map[string]string
	TimestampMs int64
}

// Identity binds a Librarian to a fixed name, purpose, topic scope, and
// permission/threshold set.
type Identity struct {
	Name        string
	Purpose     string
	Topics      []string
	Permissions []string
	Thresholds  map[string]float64
}

// HasTopic reports whether topic falls under any of the identity's
// permitted topic prefixes ("programming" permits "programming/rust").
func (id Identity) HasTopic(topic string) bool {
	for _, t := range id.Topics {
		if t == topic || hasPrefixSegment(topic, t) {
			return true
		}
	}
	return false
}

func hasPrefixSegment(topic, prefix string) bool {
	if len(topic) <= len(prefix) {
		return false
	}
	return topic[:len(prefix)] == prefix && topic[len(prefix)] == '/'
}

// Librarian is one LLM-backed actor: a fixed identity plus a
// text-generation capability.
type Librarian struct {
	identity Identity
	provider capability.TextGenerationProvider
	logger   *slog.Logger
}

// New creates a Librarian bound to provider under identity.
func New(identity Identity, provider capability.TextGenerationProvider, logger *slog.Logger) *Librarian {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Librarian{identity: identity, provider: provider, logger: logger}
}

// Name returns the librarian's identity name.
func (l *Librarian) Name() string { return l.identity.Name }

// Identity returns a copy of the librarian's identity.
func (l *Librarian) Identity() Identity { return l.identity }

// ExtractedMemory is one memory candidate produced by Extract.
type ExtractedMemory struct {
	Text      string
	Topic     string
	Tags      []string
	EntryType string
}

// ExtractResult is the safe-default-bearing result of Extract: an empty
// Memories slice when the provider's response could not be parsed.
type ExtractResult struct {
	Memories []ExtractedMemory
}

// Extract asks the provider to pull durable memories out of one
// user-input/response exchange. A provider failure propagates; a
// malformed JSON response degrades to ExtractResult{}.
func (l *Librarian) Extract(ctx context.Context, userInput, response string) (ExtractResult, error) {
	prompt, err := render(extractTemplate, map[string]string{
		"userInput": userInput,
		"response":  response,
	})
	if err != nil {
		return ExtractResult{}, err
	}
	raw, err := l.provider.Generate(ctx, prompt, l.systemPrompt("extract"))
	if err != nil {
		return ExtractResult{}, providerErr(err)
	}

	var parsed extractResponseJSON
	if !decodeJSON(raw, &parsed) {
		l.logger.Warn("librarian: malformed extract response, returning empty", slog.String("librarian", l.identity.Name))
		return ExtractResult{}, nil
	}

	memories := make([]ExtractedMemory, 0, len(parsed.Memories))
	for _, m := range parsed.Memories {
		if m.Text == "" {
			continue
		}
		memories = append(memories, ExtractedMemory{
			Text:      m.Text,
			Topic:     m.Topic,
			Tags:      m.Tags,
			EntryType: defaultString(m.EntryType, "extracted"),
		})
	}
	return ExtractResult{Memories: memories}, nil
}

// SummarizeResult is the safe-default-bearing result of Summarize.
type SummarizeResult struct {
	Summary string
}

// Summarize asks the provider to condense volumes under topic into a
// single compendium entry. Requires at least two volumes.
func (l *Librarian) Summarize(ctx context.Context, volumes []VolumeView, topic string) (SummarizeResult, error) {
	if len(volumes) < 2 {
		return SummarizeResult{}, liberr.New(liberr.KindMemorySummarizeTooFew, liberr.CodeMemorySummarizeTooFew,
			"summarize requires at least two volumes", nil)
	}
	prompt, err := render(summarizeTemplate, map[string]string{
		"topic": topic,
		"texts": joinTexts(volumes),
	})
	if err != nil {
		return SummarizeResult{}, err
	}
	raw, err := l.provider.Generate(ctx, prompt, l.systemPrompt("summarize"))
	if err != nil {
		return SummarizeResult{}, providerErr(err)
	}

	var parsed summarizeResponseJSON
	if !decodeJSON(raw, &parsed) || parsed.Summary == "" {
		l.logger.Warn("librarian: malformed summarize response, returning empty", slog.String("librarian", l.identity.Name))
		return SummarizeResult{}, nil
	}
	return SummarizeResult{Summary: parsed.Summary}, nil
}

// ClassifyResult is the safe-default-bearing result of ClassifyTopic: a
// zero confidence when the response could not be parsed.
type ClassifyResult struct {
	Topic      string
	Confidence float64
}

// ClassifyTopic asks the provider to propose a canonical topic path for
// text.
func (l *Librarian) ClassifyTopic(ctx context.Context, text string) (ClassifyResult, error) {
	prompt, err := render(classifyTemplate, map[string]string{"text": text})
	if err != nil {
		return ClassifyResult{}, err
	}
	raw, err := l.provider.Generate(ctx, prompt, l.systemPrompt("classify"))
	if err != nil {
		return ClassifyResult{}, providerErr(err)
	}

	var parsed classifyResponseJSON
	if !decodeJSON(raw, &parsed) {
		return ClassifyResult{}, nil
	}
	return ClassifyResult{Topic: parsed.Topic, Confidence: clamp01(parsed.Confidence)}, nil
}

// Move relocates one volume to a new topic, part of a ReorganizationPlan.
type Move struct {
	VolumeID string
	NewTopic string
}

// Merge folds one topic into another, part of a ReorganizationPlan.
type Merge struct {
	Source string
	Target string
}

// ReorganizationPlan is the safe-default-bearing result of Reorganize: a
// plan with no moves/subtopics/merges when the response could not be
// parsed.
type ReorganizationPlan struct {
	Moves        []Move
	NewSubtopics []string
	Merges       []Merge
}

// Reorganize asks the provider to propose a reorganization plan for the
// volumes under topic.
func (l *Librarian) Reorganize(ctx context.Context, topic string, volumes []VolumeView) (ReorganizationPlan, error) {
	prompt, err := render(reorganizeTemplate, map[string]string{
		"topic": topic,
		"texts": joinTexts(volumes),
	})
	if err != nil {
		return ReorganizationPlan{}, err
	}
	raw, err := l.provider.Generate(ctx, prompt, l.systemPrompt("reorganize"))
	if err != nil {
		return ReorganizationPlan{}, providerErr(err)
	}

	var parsed reorganizeResponseJSON
	if !decodeJSON(raw, &parsed) {
		l.logger.Warn("librarian: malformed reorganize response, returning empty plan", slog.String("librarian", l.identity.Name))
		return ReorganizationPlan{}, nil
	}
	return parsed.toPlan(), nil
}

// OptimizeResult is the safe-default-bearing result of Optimize.
type OptimizeResult struct {
	Pruned         []string
	Summary        string
	Reorganization ReorganizationPlan
}

// Optimize asks the provider to prune, summarize, and reorganize the
// volumes under topic in a single pass, optionally routed to a specific
// modelID via GenerateWithModel.
func (l *Librarian) Optimize(ctx context.Context, volumes []VolumeView, topic, modelID string) (OptimizeResult, error) {
	prompt, err := render(optimizeTemplate, map[string]string{
		"topic": topic,
		"texts": joinTexts(volumes),
	})
	if err != nil {
		return OptimizeResult{}, err
	}

	var raw string
	if modelID != "" {
		raw, err = l.provider.GenerateWithModel(ctx, prompt, modelID, l.systemPrompt("optimize"))
	} else {
		raw, err = l.provider.Generate(ctx, prompt, l.systemPrompt("optimize"))
	}
	if err != nil {
		return OptimizeResult{}, providerErr(err)
	}

	var parsed optimizeResponseJSON
	if !decodeJSON(raw, &parsed) {
		l.logger.Warn("librarian: malformed optimize response, returning empty", slog.String("librarian", l.identity.Name))
		return OptimizeResult{}, nil
	}
	return OptimizeResult{
		Pruned:         parsed.Pruned,
		Summary:        parsed.Summary,
		Reorganization: parsed.Reorganization.toPlan(),
	}, nil
}

// Bid is the result of bidding for the right to handle content under
// topic.
type Bid struct {
	Name       string
	Argument   string
	Confidence float64
}

// LibraryView is the narrow read-only view of store state a Librarian
// may consult while forming a bid.
type LibraryView interface {
	// CountByTopic returns how many volumes already live under topic.
	CountByTopic(topic string) int
}

// Bid asks the provider how confidently this librarian can handle
// content under topic, clamped to [0,1]. A malformed response yields
// zero confidence, never an error.
func (l *Librarian) Bid(ctx context.Context, content, topic string, view LibraryView) (Bid, error) {
	existing := 0
	if view != nil {
		existing = view.CountByTopic(topic)
	}
	prompt, err := render(bidTemplate, map[string]string{
		"content":  content,
		"topic":    topic,
		"existing": itoa(existing),
	})
	if err != nil {
		return Bid{Name: l.identity.Name}, err
	}
	raw, err := l.provider.Generate(ctx, prompt, l.systemPrompt("bid"))
	if err != nil {
		return Bid{Name: l.identity.Name}, providerErr(err)
	}

	var parsed bidResponseJSON
	if !decodeJSON(raw, &parsed) {
		return Bid{Name: l.identity.Name, Confidence: 0}, nil
	}
	name := parsed.Name
	if name == "" {
		name = l.identity.Name
	}
	return Bid{Name: name, Argument: parsed.Argument, Confidence: clamp01(parsed.Confidence)}, nil
}

func (l *Librarian) systemPrompt(op string) string {
	if l.identity.Purpose == "" {
		return "You are a librarian performing a " + op + " operation. Respond with JSON only."
	}
	return l.identity.Purpose + " You are performing a " + op + " operation. Respond with JSON only."
}

func providerErr(err error) error {
	if capErr, ok := err.(*capability.Error); ok {
		if capErr.Classify() {
			return liberr.New(liberr.KindProviderUnavailable, liberr.CodeProviderUnavailable, "text generation provider unavailable", capErr)
		}
		return liberr.New(liberr.KindProviderHTTP, liberr.CodeProviderHTTP, "text generation provider failed", capErr)
	}
	return liberr.New(liberr.KindProviderUnavailable, liberr.CodeProviderUnavailable, "text generation provider failed", err)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func joinTexts(volumes []VolumeView) string {
	out := ""
	for i, v := range volumes {
		if i > 0 {
			out += "\n---\n"
		}
		out += v.Text
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
