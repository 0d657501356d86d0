package intent

import (
	"context"
	"testing"

	"ragquery/internal/llm"
	"ragquery/internal/testhelpers"
)

func stubLLM(response string) *testhelpers.FakeProvider {
	return &testhelpers.FakeProvider{Resp: llm.Message{Role: "assistant", Content: response}}
}

func TestClassifyHeuristic_ClosedSetAndKBFlag(t *testing.T) {
	cases := []struct {
		q    string
		want Kind
	}{
		{"hello", KindGreeting},
		{"how are you doing today", KindSmallTalk},
		{"what time is it", KindDatetime},
		{"draw me a flowchart of the pipeline", KindDrawDiagram},
		{"summarize the onboarding doc", KindDocumentSummary},
		{"compare postgres vs sqlite", KindComparison},
		{"what's the latest news on this", KindWebSearch},
		{"how does the retriever rank results", KindKnowledgeQuery},
	}
	for _, c := range cases {
		got := classifyHeuristic(c.q, nil)
		if got.Intent != c.want {
			t.Fatalf("classifyHeuristic(%q) = %v, want %v", c.q, got.Intent, c.want)
		}
		if (c.want == KindGreeting || c.want == KindSmallTalk || c.want == KindDatetime) && got.NeedsKnowledgeBase {
			t.Fatalf("%v must not need knowledge base", c.want)
		}
	}
}

func TestClassifyHeuristic_DiagramRefinementInheritsIntent(t *testing.T) {
	history := []Turn{
		{Role: "user", Content: "draw the pipeline"},
		{Role: "assistant", Content: "[MERMAID_DIAGRAM]...[/MERMAID_DIAGRAM]", Intent: KindDrawDiagram},
	}
	got := classifyHeuristic("redo it with more detail", history)
	if got.Intent != KindDrawDiagram {
		t.Fatalf("expected refinement to inherit draw_diagram, got %v", got.Intent)
	}
}

func TestAnalyzer_ParsesStrictJSON(t *testing.T) {
	a := NewAnalyzer(stubLLM(`{"intent":"knowledge_query","needsKnowledgeBase":true,"needsMemory":true,"keywords":["rrf"],"suggestedTool":"search_knowledge","confidence":0.9}`), "gpt")
	out, err := a.Analyze(context.Background(), "what is RRF", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Intent != KindKnowledgeQuery || !out.NeedsKnowledgeBase || out.Confidence != 0.9 {
		t.Fatalf("unexpected intent: %+v", out)
	}
}

func TestAnalyzer_FallsBackOnUnparsableResponse(t *testing.T) {
	a := NewAnalyzer(stubLLM("not json"), "gpt")
	out, err := a.Analyze(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Intent != KindGreeting {
		t.Fatalf("expected heuristic fallback to classify greeting, got %+v", out)
	}
}

func TestAnalyzer_EnforcesDiagramContinuityEvenIfModelIgnoresIt(t *testing.T) {
	a := NewAnalyzer(stubLLM(`{"intent":"knowledge_query","needsKnowledgeBase":true,"confidence":0.5}`), "gpt")
	history := []Turn{
		{Role: "assistant", Content: "[MERMAID_DIAGRAM]...[/MERMAID_DIAGRAM]", Intent: KindDrawDiagram},
	}
	out, err := a.Analyze(context.Background(), "redo it", history)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Intent != KindDrawDiagram {
		t.Fatalf("expected forced draw_diagram continuity, got %v", out.Intent)
	}
}

func TestShouldSkipAgent(t *testing.T) {
	if !ShouldSkipAgent(Intent{Intent: KindGreeting}) {
		t.Fatal("greeting should skip agent")
	}
	if ShouldSkipAgent(Intent{Intent: KindKnowledgeQuery}) {
		t.Fatal("knowledge_query should not skip agent")
	}
}
