package canonical

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragquery/internal/tools"
	"ragquery/internal/tools/web"
)

const (
	webSearchFetchMaxChars  = 3000
	fetchWebpageMaxChars    = 3000
	webSearchHardStopNotice = "web_search has received three consecutive invalid calls and is now disabled for this query. Answer from what is already known."
)

// webSearchTool wraps the SearXNG-backed search client, returning the top
// 3 hits plus the auto-fetched body of the first result so the agent
// doesn't need a second round trip for the common case of "search then
// read the top hit".
type webSearchTool struct {
	tc      *ToolContext
	backend tools.Tool
}

// NewWebSearchTool builds the canonical web_search tool over a SearXNG
// endpoint. searxngURL may be empty in a deployment with no web backend
// configured, in which case the tool always reports itself unavailable.
func NewWebSearchTool(tc *ToolContext, searxngURL string) *webSearchTool {
	var backend tools.Tool
	if searxngURL != "" {
		backend = web.NewTool(searxngURL)
	}
	return &webSearchTool{tc: tc, backend: backend}
}

func (t *webSearchTool) Name() string { return "web_search" }

func (t *webSearchTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Search the public web for current information not in the knowledge base.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *webSearchTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Query) == "" {
		t.tc.recordInvalid(t.Name())
		if _, hardStop := t.tc.noteWebSearchInvalid(); hardStop {
			return webSearchHardStopNotice, nil
		}
		return "web_search requires a non-empty \"query\" string.", nil
	}
	if t.backend == nil {
		return "Web search is not configured for this deployment.", nil
	}
	t.tc.noteWebSearchValid()

	backendRaw, _ := json.Marshal(map[string]any{"query": args.Query, "max_results": 3, "format": "json"})
	result, err := t.backend.Call(ctx, backendRaw)
	if err != nil {
		return fmt.Sprintf("web_search failed: %v", err), nil
	}
	payload, _ := result.(map[string]any)
	hits, _ := payload["results"].([]web.SearchResult)
	if len(hits) == 0 {
		return "No web results were found.", nil
	}

	var b strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, h.Title, h.URL)
	}

	if t.tc.Fetcher != nil && hits[0].URL != "" {
		if page, err := t.tc.Fetcher.FetchMarkdown(ctx, hits[0].URL); err == nil && page != nil {
			fmt.Fprintf(&b, "--- First result body (%s) ---\n%s", hits[0].URL, clipText(page.Markdown, webSearchFetchMaxChars))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// fetchWebpageTool fetches and cleans a single page's body.
type fetchWebpageTool struct{ tc *ToolContext }

func NewFetchWebpageTool(tc *ToolContext) *fetchWebpageTool { return &fetchWebpageTool{tc: tc} }

func (t *fetchWebpageTool) Name() string { return "fetch_webpage" }

func (t *fetchWebpageTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Fetch a web page by URL and return its cleaned text body.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"url"},
			"properties": map[string]any{
				"url": map[string]any{"type": "string"},
			},
		},
	}
}

func (t *fetchWebpageTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.URL) == "" {
		t.tc.recordInvalid(t.Name())
		return "fetch_webpage requires a non-empty \"url\" string.", nil
	}
	res, err := t.tc.Fetcher.FetchMarkdown(ctx, args.URL)
	if err != nil || res == nil {
		return fmt.Sprintf("fetch_webpage failed: %v", err), nil
	}
	return clipText(res.Markdown, fetchWebpageMaxChars), nil
}
