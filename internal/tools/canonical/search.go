package canonical

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragquery/internal/embedding"
	"ragquery/internal/retrieve"
)

func embedQuery(ctx context.Context, tc *ToolContext, query string) []float32 {
	if tc.Deps.Vector == nil {
		return nil
	}
	vecs, err := embedding.EmbedText(ctx, tc.EmbedCfg, []string{query})
	if err != nil || len(vecs) == 0 {
		return nil
	}
	return vecs[0]
}

func formatItems(items []retrieve.RetrievedItem) string {
	if len(items) == 0 {
		return "No matching results were found."
	}
	var b strings.Builder
	for i, it := range items {
		title := it.Doc.Title
		if title == "" {
			title = it.DocID
		}
		text := it.Text
		if text == "" {
			text = it.Snippet
		}
		fmt.Fprintf(&b, "%d. [%s] (score %.3f)\n%s\n\n", i+1, title, it.Score, strings.TrimSpace(text))
	}
	return strings.TrimSpace(b.String())
}

// searchKnowledgeTool is the agent's default retrieval tool: fused top-3
// hybrid search results.
type searchKnowledgeTool struct{ tc *ToolContext }

func NewSearchKnowledgeTool(tc *ToolContext) *searchKnowledgeTool { return &searchKnowledgeTool{tc: tc} }

func (t *searchKnowledgeTool) Name() string { return "search_knowledge" }

func (t *searchKnowledgeTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the knowledge base for passages relevant to a query. Use for most factual questions.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Natural-language search query"},
			},
		},
	}
}

func (t *searchKnowledgeTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		t.tc.recordInvalid(t.Name())
		return "search_knowledge requires a non-empty \"query\" string.", nil
	}
	resp, err := retrieve.HybridSearch(ctx, t.tc.Deps, args.Query, embedQuery(ctx, t.tc, args.Query), retrieve.RetrieveOptions{K: 5, IncludeText: true, IncludeSnippet: true})
	if err != nil {
		return fmt.Sprintf("search_knowledge failed: %v", err), nil
	}
	items := resp.Items
	if len(items) > 3 {
		items = items[:3]
	}
	return formatItems(items), nil
}

// deepSearchTool is the wider-net variant: top-8 hybrid results.
type deepSearchTool struct{ tc *ToolContext }

func NewDeepSearchTool(tc *ToolContext) *deepSearchTool { return &deepSearchTool{tc: tc} }

func (t *deepSearchTool) Name() string { return "deep_search" }

func (t *deepSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the knowledge base more broadly than search_knowledge. Use when the first search didn't find enough, or before drawing a diagram.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *deepSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		t.tc.recordInvalid(t.Name())
		return "deep_search requires a non-empty \"query\" string.", nil
	}
	resp, err := retrieve.HybridSearch(ctx, t.tc.Deps, args.Query, embedQuery(ctx, t.tc, args.Query), retrieve.RetrieveOptions{K: 10, IncludeText: true, IncludeSnippet: true})
	if err != nil {
		return fmt.Sprintf("deep_search failed: %v", err), nil
	}
	items := resp.Items
	if len(items) > 8 {
		items = items[:8]
	}
	return formatItems(items), nil
}

// keywordSearchTool bypasses vector retrieval entirely, calling the
// keyword index directly.
type keywordSearchTool struct{ tc *ToolContext }

func NewKeywordSearchTool(tc *ToolContext) *keywordSearchTool { return &keywordSearchTool{tc: tc} }

func (t *keywordSearchTool) Name() string { return "keyword_search" }

func (t *keywordSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Exact keyword/phrase search over the knowledge base, bypassing semantic search. Use for proper nouns, IDs, or exact phrases.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *keywordSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		t.tc.recordInvalid(t.Name())
		return "keyword_search requires a non-empty \"query\" string.", nil
	}
	if !searchHealthy(ctx, t.tc.Deps.Search) {
		return "The keyword index is currently unavailable.", nil
	}
	results, err := t.tc.Deps.Search.Search(ctx, args.Query, 5)
	if err != nil {
		return fmt.Sprintf("keyword_search failed: %v", err), nil
	}
	if len(results) == 0 {
		return "No matching results were found.", nil
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. (score %.3f) %s\n\n", i+1, r.Score, strings.TrimSpace(r.Snippet))
	}
	return strings.TrimSpace(b.String()), nil
}

// graphSearchTool queries the graph index natively, falling back to hybrid
// search when the graph is unhealthy or returns nothing.
type graphSearchTool struct{ tc *ToolContext }

func NewGraphSearchTool(tc *ToolContext) *graphSearchTool { return &graphSearchTool{tc: tc} }

func (t *graphSearchTool) Name() string { return "graph_search" }

func (t *graphSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the knowledge graph for entities and relationships relevant to a query. Falls back to regular search if the graph has no answer.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"mode":  map[string]any{"type": "string", "description": "Optional graph traversal mode hint."},
			},
		},
	}
}

func (t *graphSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
		Mode  string `json:"mode"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		t.tc.recordInvalid(t.Name())
		return "graph_search requires a non-empty \"query\" string.", nil
	}
	resp, err := retrieve.GraphSearch(ctx, t.tc.Deps, args.Query, embedQuery(ctx, t.tc, args.Query), retrieve.RetrieveOptions{K: 8, IncludeText: true, GraphAugment: true}, t.tc.GraphTimeout)
	if err != nil {
		return fmt.Sprintf("graph_search failed: %v", err), nil
	}
	if len(resp.Items) == 0 {
		return "The graph index has no answer for this query.", nil
	}
	return formatItems(resp.Items), nil
}
