package librarian

import (
	"bytes"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/patronlib/librarystack/pkg/liberr"
)

const extractTemplate = `Extract durable, reusable memories from this exchange.

User: {{.userInput}}
Response: {{.response}}

Respond with JSON only, shaped as:
{"memories": [{"text": "...", "topic": "...", "tags": ["..."], "entryType": "extracted"}]}`

const summarizeTemplate = `Summarize the following entries under the topic "{{.topic}}" into one compendium entry.

Entries:
{{.texts}}

Respond with JSON only, shaped as: {"summary": "..."}`

const classifyTemplate = `Classify the following text into a single canonical topic path.

Text: {{.text}}

Respond with JSON only, shaped as: {"topic": "...", "confidence": 0.0}`

const reorganizeTemplate = `Propose a reorganization plan for the entries under topic "{{.topic}}".

Entries:
{{.texts}}

Respond with JSON only, shaped as:
{"moves": [{"volumeId": "...", "newTopic": "..."}], "newSubtopics": ["..."], "merges": [{"source": "...", "target": "..."}]}`

const optimizeTemplate = `Optimize the entries under topic "{{.topic}}": prune redundant entries, summarize what remains, and propose a reorganization.

Entries:
{{.texts}}

Respond with JSON only, shaped as:
{"pruned": ["..."], "summary": "...", "reorganization": {"moves": [{"volumeId": "...", "newTopic": "..."}], "newSubtopics": ["..."], "merges": [{"source": "...", "target": "..."}]}}`

const bidTemplate = `Decide how confidently you can handle this content under topic "{{.topic}}" ({{.existing}} entries already stored there).

Content: {{.content}}

Respond with JSON only, shaped as: {"name": "...", "argument": "...", "confidence": 0.0}`

// render executes a prompt template against data. A reference to a
// variable the template does not supply fails with
// KindTemplateMissingVariable, via text/template's missingkey=error
// option.
func render(tmplText string, data map[string]string) (string, error) {
	tmpl, err := template.New("prompt").Option("missingkey=error").Parse(tmplText)
	if err != nil {
		return "", liberr.New(liberr.KindTemplateMissingVariable, liberr.CodeTemplateMissingVariable, "prompt template invalid", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", liberr.New(liberr.KindTemplateMissingVariable, liberr.CodeTemplateMissingVariable, "prompt template missing variable", err)
	}
	return buf.String(), nil
}

// decodeJSON extracts the first JSON object found in raw (stripping any
// surrounding markdown code fence an LLM may have added) and unmarshals
// it into v. Returns false — never an error — on any failure, since a
// malformed response degrades to the caller's safe default.
func decodeJSON(raw string, v any) bool {
	body := extractJSONObject(raw)
	if body == "" {
		return false
	}
	return json.Unmarshal([]byte(body), v) == nil
}

// extractJSONObject returns the substring of raw spanning the first '{'
// to its matching closing '}', tolerating a ```json fence wrapper.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

type extractResponseJSON struct {
	Memories []struct {
		Text      string   `json:"text"`
		Topic     string   `json:"topic"`
		Tags      []string `json:"tags"`
		EntryType string   `json:"entryType"`
	} `json:"memories"`
}

type summarizeResponseJSON struct {
	Summary string `json:"summary"`
}

type classifyResponseJSON struct {
	Topic      string  `json:"topic"`
	Confidence float64 `json:"confidence"`
}

type reorganizeResponseJSON struct {
	Moves []struct {
		VolumeID string `json:"volumeId"`
		NewTopic string `json:"newTopic"`
	} `json:"moves"`
	NewSubtopics []string `json:"newSubtopics"`
	Merges       []struct {
		Source string `json:"source"`
		Target string `json:"target"`
	} `json:"merges"`
}

func (r reorganizeResponseJSON) toPlan() ReorganizationPlan {
	plan := ReorganizationPlan{NewSubtopics: r.NewSubtopics}
	for _, m := range r.Moves {
		if m.VolumeID == "" || m.NewTopic == "" {
			continue
		}
		plan.Moves = append(plan.Moves, Move{VolumeID: m.VolumeID, NewTopic: m.NewTopic})
	}
	for _, m := range r.Merges {
		if m.Source == "" || m.Target == "" {
			continue
		}
		plan.Merges = append(plan.Merges, Merge{Source: m.Source, Target: m.Target})
	}
	return plan
}

type optimizeResponseJSON struct {
	Pruned         []string               `json:"pruned"`
	Summary        string                 `json:"summary"`
	Reorganization reorganizeResponseJSON `json:"reorganization"`
}

type bidResponseJSON struct {
	Name       string  `json:"name"`
	Argument   string  `json:"argument"`
	Confidence float64 `json:"confidence"`
}
