package canonical

import (
	"context"
	"encoding/json"
	"strings"

	"ragquery/internal/retrieve"
)

const summarizeTopicMaxChars = 8000

// summarizeTopicTool returns the raw text of the document that best
// matches a topic, rather than a synthesized answer, so the agent can read
// and summarize it itself. It tries a direct keyword (relational) lookup
// first since an exact title/keyword match is cheaper and more precise
// than embedding the topic, falling back to the semantic retriever when no
// strong keyword hit exists.
type summarizeTopicTool struct{ tc *ToolContext }

func NewSummarizeTopicTool(tc *ToolContext) *summarizeTopicTool { return &summarizeTopicTool{tc: tc} }

func (t *summarizeTopicTool) Name() string { return "summarize_topic" }

func (t *summarizeTopicTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Fetch the full raw text of the document that best matches a topic, for summarization. Use before generate_diagram or document_summary-style questions.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"topic"},
			"properties": map[string]any{
				"topic": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *summarizeTopicTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Topic) == "" {
		t.tc.recordInvalid(t.Name())
		return "summarize_topic requires a non-empty \"topic\" string.", nil
	}

	if searchHealthy(ctx, t.tc.Deps.Search) {
		if results, err := t.tc.Deps.Search.Search(ctx, args.Topic, 1); err == nil && len(results) > 0 {
			best := results[0]
			if strings.Contains(strings.ToLower(best.Metadata["title"]), strings.ToLower(args.Topic)) && best.Text != "" {
				return clipText(best.Text, summarizeTopicMaxChars), nil
			}
		}
	}

	resp, err := retrieve.HybridSearch(ctx, t.tc.Deps, args.Topic, embedQuery(ctx, t.tc, args.Topic), retrieve.RetrieveOptions{K: 1, IncludeText: true})
	if err != nil || len(resp.Items) == 0 {
		return "No document matching that topic was found.", nil
	}
	text := resp.Items[0].Text
	if text == "" {
		text = resp.Items[0].Snippet
	}
	return clipText(text, summarizeTopicMaxChars), nil
}

func clipText(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
