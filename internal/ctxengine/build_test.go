package ctxengine

import (
	"context"
	"strings"
	"testing"

	"ragquery/internal/databases"
	"ragquery/internal/intent"
	"ragquery/internal/memory"
	"ragquery/internal/retrieve"
)

type stubRecaller struct {
	scored []memory.Scored
}

func (s stubRecaller) Recall(context.Context, string, string, int) ([]memory.Scored, error) {
	return s.scored, nil
}

type stubRetriever struct {
	resp retrieve.RetrieveResponse
}

func (s stubRetriever) Retrieve(context.Context, string, retrieve.RetrieveOptions) (retrieve.RetrieveResponse, error) {
	return s.resp, nil
}

func TestBuildContext_SkipsRetrievalAndMemoryWhenIntentSaysSo(t *testing.T) {
	e := &Engine{
		Memory:    stubRecaller{scored: []memory.Scored{{Record: memory.Record{Content: "should not appear"}}}},
		Retriever: stubRetriever{resp: retrieve.RetrieveResponse{Items: []retrieve.RetrievedItem{{DocID: "d1", Text: "should not appear either"}}}},
	}
	in := intent.Intent{Intent: intent.KindGreeting, NeedsKnowledgeBase: false, NeedsMemory: false}
	res, err := e.BuildContext(context.Background(), Request{
		KBID: "kb", Query: "hi", MaxTokens: 500, Intent: &in,
	})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if strings.Contains(res.ContextString, "should not appear") {
		t.Fatalf("expected memory/retrieval sections skipped, got %q", res.ContextString)
	}
	if len(res.Memories) != 0 || len(res.RAGResults) != 0 {
		t.Fatalf("expected empty shaped sections, got %+v / %+v", res.Memories, res.RAGResults)
	}
}

func TestBuildContext_IncludesHeadedSectionsWhenEnabled(t *testing.T) {
	e := &Engine{
		Memory:    stubRecaller{scored: []memory.Scored{{Record: memory.Record{Content: "user prefers concise answers"}}}},
		Retriever: stubRetriever{resp: retrieve.RetrieveResponse{Items: []retrieve.RetrievedItem{{DocID: "doc1", Text: "RRF combines ranked lists."}}}},
	}
	in := intent.Intent{Intent: intent.KindKnowledgeQuery, NeedsKnowledgeBase: true, NeedsMemory: true}
	history := []databases.ChatRecord{
		{Role: "user", Content: "what is RRF"},
		{Role: "assistant", Content: "Reciprocal rank fusion combines ranked lists."},
	}
	res, err := e.BuildContext(context.Background(), Request{
		KBID: "kb", Query: "explain more", MaxTokens: 2000, Intent: &in, ChatHistory: history,
	})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	for _, want := range []string{"## Chat History", "## User Memory", "## Retrieval"} {
		if !strings.Contains(res.ContextString, want) {
			t.Fatalf("expected section header %q in context, got %q", want, res.ContextString)
		}
	}
	if res.Stats.EstimatedTokens > res.Stats.TokenBudget {
		// Budget sections are soft caps per-section with rollover; the total
		// is still expected to stay within the declared budget for this
		// small fixture.
		t.Fatalf("estimated tokens %d exceeded budget %d", res.Stats.EstimatedTokens, res.Stats.TokenBudget)
	}
}

func TestBuildContext_TruncatesOversizedSectionsAtSentenceBoundary(t *testing.T) {
	longMemory := strings.Repeat("This is a sentence about the user's preferences. ", 50)
	e := &Engine{
		Memory: stubRecaller{scored: []memory.Scored{{Record: memory.Record{Content: longMemory}}}},
	}
	in := intent.Intent{NeedsMemory: true, NeedsKnowledgeBase: false}
	res, err := e.BuildContext(context.Background(), Request{KBID: "kb", Query: "q", MaxTokens: 50, Intent: &in})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(res.ContextString) >= len(longMemory) {
		t.Fatalf("expected memory section to be truncated, got length %d", len(res.ContextString))
	}
}

func TestBuildContext_RespectsProvidedIntentWithoutReanalyzing(t *testing.T) {
	e := &Engine{Analyzer: nil}
	in := intent.Intent{Intent: intent.KindDatetime, NeedsKnowledgeBase: false, NeedsMemory: false}
	res, err := e.BuildContext(context.Background(), Request{KBID: "kb", Query: "what time is it", MaxTokens: 200, Intent: &in})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if res.ContextString != "" {
		t.Fatalf("expected empty context for a no-retrieval no-memory intent, got %q", res.ContextString)
	}
}
