package ctxengine

import (
	"context"
	"fmt"
	"strings"

	"ragquery/internal/databases"
	"ragquery/internal/intent"
	"ragquery/internal/llm"
	"ragquery/internal/memory"
	"ragquery/internal/observability"
	"ragquery/internal/retrieve"
	"ragquery/internal/textsplitters"
)

// MemoryRecaller is the subset of memory.Service the Context Engine needs,
// narrowed to an interface so it can be swapped for a stub in tests.
type MemoryRecaller interface {
	Recall(ctx context.Context, kbID, query string, k int) ([]memory.Scored, error)
}

// Retriever is the subset of the retrieval fabric's query-time service the
// Context Engine needs.
type Retriever interface {
	Retrieve(ctx context.Context, q string, opt retrieve.RetrieveOptions) (retrieve.RetrieveResponse, error)
}

// Engine builds budgeted context strings for the ReAct loop.
type Engine struct {
	Memory    MemoryRecaller
	Retriever Retriever
	LLM       llm.Provider
	Model     string

	// Analyzer is only consulted when a Request arrives with a nil Intent.
	// The normal data flow runs intent analysis upstream and passes it in,
	// in which case the engine must not re-run it.
	Analyzer *intent.Analyzer

	// RecentTurns is how many trailing turns (user+assistant pairs) are kept
	// verbatim; everything older is summarized. Default 3.
	RecentTurns int
	// CharsPerToken overrides DefaultCharsPerToken.
	CharsPerToken int
	// MemoryTopK bounds how many memories Recall returns. Default 5.
	MemoryTopK int
	// RetrieveOptions is the base retrieval configuration; K is overridden
	// by whatever budget remains unless already set.
	RetrieveOptions retrieve.RetrieveOptions
}

func (e *Engine) recentTurns() int {
	if e.RecentTurns > 0 {
		return e.RecentTurns
	}
	return 3
}

func (e *Engine) charsPerToken() int {
	if e.CharsPerToken > 0 {
		return e.CharsPerToken
	}
	return DefaultCharsPerToken
}

func (e *Engine) memoryTopK() int {
	if e.MemoryTopK > 0 {
		return e.MemoryTopK
	}
	return 5
}

// BuildContext assembles the prompt context for one query: relevant
// memories, a rolling summary of older chat history, the last few turns
// verbatim, and retrieval results, each clipped to its own share of
// req.MaxTokens and concatenated under headed subsections.
func (e *Engine) BuildContext(ctx context.Context, req Request) (Result, error) {
	cpt := e.charsPerToken()
	in, err := e.resolveIntent(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("resolve intent: %w", err)
	}

	var stats Stats
	stats.TokenBudget = req.MaxTokens

	memCap := charBudget(req.MaxTokens, memoryShare, cpt)
	historyCap := charBudget(req.MaxTokens, historyShare, cpt)
	turnsCap := charBudget(req.MaxTokens, recentTurnShare, cpt)

	// Section 1: relevant memories.
	var scoredMemories []memory.Scored
	memorySection := ""
	if in.NeedsMemory && e.Memory != nil {
		scoredMemories, err = e.Memory.Recall(ctx, req.KBID, req.Query, e.memoryTopK())
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_memory_recall_failed")
			scoredMemories = nil
		}
		memorySection = renderMemories(scoredMemories)
		memorySection, memCap = fitSection(memorySection, memCap)
	}
	stats.MemoryTokens = estimateTokens(memorySection, cpt)
	historyCap += memCap // unused memory budget rolls forward

	// Sections 2+3: rolling summary of older turns, last N turns verbatim.
	older, recent := splitHistory(req.ChatHistory, e.recentTurns())
	summary := e.summarizeHistory(ctx, older, historyCap)
	summary, historyCap = fitSection(summary, historyCap)
	turnsCap += historyCap // unused history budget rolls forward

	recentText := renderTurns(recent)
	recentText, turnsCap = fitSection(recentText, turnsCap)

	chatHistorySection := strings.TrimSpace(strings.Join([]string{summary, recentText}, "\n\n"))
	stats.HistoryTokens = estimateTokens(chatHistorySection, cpt)

	// Section 4: retrieval results get whatever budget remains.
	retrievalCap := turnsCap
	var items []retrieve.RetrievedItem
	retrievalSection := ""
	if in.NeedsKnowledgeBase && e.Retriever != nil {
		opt := e.RetrieveOptions
		if opt.K == 0 {
			opt.K = 8
		}
		resp, err := e.Retriever.Retrieve(ctx, req.Query, opt)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_retrieve_failed")
		} else {
			items = resp.Items
		}
		retrievalSection = renderItems(items, retrievalCap/max(1, len(items)+1))
		retrievalSection, _ = fitSection(retrievalSection, retrievalCap)
	}
	stats.RetrievalTokens = estimateTokens(retrievalSection, cpt)

	contextString := assemble(memorySection, chatHistorySection, retrievalSection)
	stats.EstimatedTokens = estimateTokens(contextString, cpt)

	return Result{
		ContextString:  contextString,
		Memories:       scoredMemories,
		RAGResults:     items,
		HistorySummary: summary,
		Stats:          stats,
	}, nil
}

func (e *Engine) resolveIntent(ctx context.Context, req Request) (intent.Intent, error) {
	if req.Intent != nil {
		return *req.Intent, nil
	}
	if e.Analyzer == nil {
		return intent.Intent{NeedsKnowledgeBase: true, NeedsMemory: true}, nil
	}
	turns := make([]intent.Turn, 0, len(req.ChatHistory))
	for _, h := range req.ChatHistory {
		turns = append(turns, intent.Turn{Role: h.Role, Content: h.Content, Intent: intent.Kind(h.Intent)})
	}
	return e.Analyzer.Analyze(ctx, req.Query, turns)
}

// fitSection truncates text to fit within capChars (at a sentence boundary
// when possible) and returns the leftover capacity the next section may
// claim.
func fitSection(text string, capChars int) (string, int) {
	if capChars <= 0 {
		return "", 0
	}
	truncated := textsplitters.TruncateAtSentenceBoundary(text, capChars)
	leftover := capChars - len([]rune(truncated))
	if leftover < 0 {
		leftover = 0
	}
	return truncated, leftover
}

func splitHistory(history []databases.ChatRecord, recentTurns int) (older, recent []databases.ChatRecord) {
	keep := recentTurns * 2 // user+assistant per turn
	if keep <= 0 || len(history) <= keep {
		return nil, history
	}
	cut := len(history) - keep
	return history[:cut], history[cut:]
}

func renderTurns(turns []databases.ChatRecord) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}
	return strings.TrimSpace(b.String())
}

const summarizePrompt = "Summarize the following conversation history in a few short sentences, preserving names, decisions, and open questions. Output only the summary."

// summarizeHistory produces a rolling summary of turns older than the
// retained window. It uses a single LLM call when a provider is
// configured; otherwise it falls back to a deterministic truncation so the
// section is never silently dropped.
func (e *Engine) summarizeHistory(ctx context.Context, older []databases.ChatRecord, capChars int) string {
	if len(older) == 0 {
		return ""
	}
	raw := renderTurns(older)
	if e.LLM == nil {
		return textsplitters.TruncateAtSentenceBoundary(raw, capChars)
	}
	resp, err := e.LLM.Chat(ctx, []llm.Message{
		{Role: "system", Content: summarizePrompt},
		{Role: "user", Content: raw},
	}, nil, e.Model)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("context_history_summary_failed")
		return textsplitters.TruncateAtSentenceBoundary(raw, capChars)
	}
	return strings.TrimSpace(resp.Content)
}

func renderMemories(scored []memory.Scored) string {
	if len(scored) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range scored {
		fmt.Fprintf(&b, "- %s\n", s.Record.Content)
	}
	return strings.TrimSpace(b.String())
}

func renderItems(items []retrieve.RetrievedItem, perItemCap int) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		text := it.Text
		if text == "" {
			text = it.Snippet
		}
		if perItemCap > 0 {
			text = textsplitters.TruncateAtSentenceBoundary(text, perItemCap)
		}
		title := it.Doc.Title
		if title == "" {
			title = it.DocID
		}
		fmt.Fprintf(&b, "- [%s] %s\n", title, text)
	}
	return strings.TrimSpace(b.String())
}

func assemble(memorySection, chatHistorySection, retrievalSection string) string {
	var parts []string
	if chatHistorySection != "" {
		parts = append(parts, "## Chat History\n"+chatHistorySection)
	}
	if memorySection != "" {
		parts = append(parts, "## User Memory\n"+memorySection)
	}
	if retrievalSection != "" {
		parts = append(parts, "## Retrieval\n"+retrievalSection)
	}
	return strings.Join(parts, "\n\n")
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
