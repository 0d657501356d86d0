// Package canonical assembles the nine tools the ReAct agent loop is built
// around: search_knowledge, deep_search, keyword_search, graph_search,
// summarize_topic, web_search, fetch_webpage, get_current_datetime, and
// generate_diagram. Each is a plain tools.Tool closing over a ToolContext
// built once per query.
package canonical

import (
	"context"
	"sync"
	"time"

	"ragquery/internal/config"
	"ragquery/internal/databases"
	"ragquery/internal/llm"
	"ragquery/internal/retrieve"
	"ragquery/internal/tools/web"
)

// ToolContext is the per-query state every canonical tool closes over: the
// retrieval fabric's backends, the KB being queried, and bookkeeping for the
// invalid-parameter circuit breaker web_search needs.
type ToolContext struct {
	KBID     string
	Deps     retrieve.Deps
	EmbedCfg config.EmbeddingConfig

	LLM   llm.Provider
	Model string

	Fetcher  *web.Fetcher
	Timezone *time.Location

	GraphTimeout time.Duration

	mu                     sync.Mutex
	invalidCounts          map[string]int
	webSearchInvalidStreak int
}

// NewToolContext constructs a ToolContext. timezone defaults to UTC when
// nil, matching get_current_datetime's "fixed time zone from config"
// requirement.
func NewToolContext(kbID string, deps retrieve.Deps, embedCfg config.EmbeddingConfig, llmProvider llm.Provider, model string, timezone *time.Location) *ToolContext {
	if timezone == nil {
		timezone = time.UTC
	}
	return &ToolContext{
		KBID:          kbID,
		Deps:          deps,
		EmbedCfg:      embedCfg,
		LLM:           llmProvider,
		Model:         model,
		Fetcher:       web.NewFetcher(),
		Timezone:      timezone,
		invalidCounts: make(map[string]int),
	}
}

// recordInvalid increments the invalid-parameter counter for a tool name
// and returns the new count.
func (tc *ToolContext) recordInvalid(name string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.invalidCounts[name]++
	return tc.invalidCounts[name]
}

// InvalidCount reports the current invalid-parameter count for a tool,
// for callers (the adaptive context manager, evaluation harness) that want
// to surface how often the agent called a tool with bad arguments.
func (tc *ToolContext) InvalidCount(name string) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.invalidCounts[name]
}

// noteWebSearchValid resets web_search's invalid-call streak after a
// successful call; noteWebSearchInvalid increments it and reports whether
// the hard-stop threshold (3 consecutive invalid calls) has been reached.
func (tc *ToolContext) noteWebSearchValid() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.webSearchInvalidStreak = 0
}

func (tc *ToolContext) noteWebSearchInvalid() (streak int, hardStop bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.webSearchInvalidStreak++
	return tc.webSearchInvalidStreak, tc.webSearchInvalidStreak >= 3
}

func searchHealthy(ctx context.Context, s databases.FullTextSearch) bool {
	if s == nil {
		return false
	}
	return s.Health(ctx) == nil
}
