package library

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/patronlib/librarystack/internal/metaindex"
	"github.com/patronlib/librarystack/internal/stacks"
)

// ParsedQuery is the structured form ParseQuery builds from a
// line-oriented query expression, ready to feed into
// stacks.AdvancedSearchOptions.
type ParsedQuery struct {
	Text        string
	Metadata    []metaindex.Filter
	Topic       string
	MinScore    float64
	MinScoreSet bool
}

// ToAdvancedSearchOptions adapts a ParsedQuery into
// stacks.AdvancedSearchOptions, leaving QueryEmbedding/RankBy/
// MaxResults for the caller to fill in.
func (p ParsedQuery) ToAdvancedSearchOptions() stacks.AdvancedSearchOptions {
	opts := stacks.AdvancedSearchOptions{
		Text:     p.Text,
		Metadata: p.Metadata,
	}
	if p.Topic != "" {
		opts.TopicFilter = []string{p.Topic}
	}
	if p.MinScoreSet {
		threshold := p.MinScore
		opts.SimilarityThreshold = &threshold
	}
	return opts
}

// ParseQuery parses a line-oriented query expression with `text:`,
// `metadata:KEY=VALUE` (repeatable, AND-combined), `topic:`, and
// `minScore:` prefixes; bare tokens concatenate into the text query.
// The parser is tolerant: unknown prefixes are treated as bare text,
// missing values are dropped, and malformed numeric values are reported
// to logger (if non-nil) rather than failing the parse.
func ParseQuery(expr string, logger *slog.Logger) ParsedQuery {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var result ParsedQuery
	var textParts []string

	for _, line := range strings.Split(expr, "\n") {
		for _, token := range strings.Fields(line) {
			switch {
			case strings.HasPrefix(token, "text:"):
				value := strings.TrimPrefix(token, "text:")
				if value != "" {
					textParts = append(textParts, value)
				}
			case strings.HasPrefix(token, "metadata:"):
				value := strings.TrimPrefix(token, "metadata:")
				key, val, ok := strings.Cut(value, "=")
				if !ok || key == "" {
					continue
				}
				result.Metadata = append(result.Metadata, metaindex.Filter{
					Key: key, Operator: metaindex.OpEq, Value: val,
				})
			case strings.HasPrefix(token, "topic:"):
				value := strings.TrimPrefix(token, "topic:")
				if value != "" {
					result.Topic = value
				}
			case strings.HasPrefix(token, "minScore:"):
				value := strings.TrimPrefix(token, "minScore:")
				n, err := strconv.ParseFloat(value, 64)
				if err != nil {
					logger.Warn("library: malformed minScore in query, ignoring", slog.String("value", value), slog.Any("error", err))
					continue
				}
				result.MinScore = n
				result.MinScoreSet = true
			default:
				if token != "" {
					textParts = append(textParts, token)
				}
			}
		}
	}

	result.Text = strings.Join(textParts, " ")
	return result
}
