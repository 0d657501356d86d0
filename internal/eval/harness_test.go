package eval

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"ragquery/internal/llm"
)

// recorderWriter is a minimal http.ResponseWriter stand-in for testing
// WriteSSE's output without pulling in httptest for one assertion.
type recorderWriter struct {
	buf     strings.Builder
	headers http.Header
}

func (w *recorderWriter) Header() http.Header {
	if w.headers == nil {
		w.headers = make(http.Header)
	}
	return w.headers
}

func (w *recorderWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *recorderWriter) WriteHeader(statusCode int)    {}

// scriptedJudgeLLM returns a score response keyed off which question it
// was asked, falling back to a default so concurrent judges don't race on
// a shared index.
type scriptedJudgeLLM struct {
	mu       sync.Mutex
	fallback string
}

func (s *scriptedJudgeLLM) Chat(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema, model string) (llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return llm.Message{Role: "assistant", Content: s.fallback}, nil
}

func (s *scriptedJudgeLLM) ChatStream(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return errors.New("not implemented")
}

func TestHarness_RunCompletesAndScoresQuestions(t *testing.T) {
	judge := &scriptedJudgeLLM{fallback: `{"score": 4, "reason": "solid"}`}
	agent := func(ctx context.Context, q Question) (AgentOutcome, error) {
		return AgentOutcome{
			Answer:        "answer for " + q.Question,
			RetrievedText: "some retrieved passage",
			ToolsCalled:   []string{"search_knowledge"},
		}, nil
	}
	h := &Harness{LLM: judge, Model: "test-model", Agent: agent}

	var events []Event
	run, err := h.Run(context.Background(), "run-1", "kb1", []Question{
		{Question: "What is X?", ExpectedTools: []string{"search_knowledge"}, ExpectedIntent: "knowledge_query"},
		{Question: "What is Y?"},
	}, func(ev Event) { events = append(events, ev) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %v", run.Status)
	}
	if run.Completed != 2 || len(run.Results) != 2 {
		t.Fatalf("expected 2 completed results, got completed=%d results=%d", run.Completed, len(run.Results))
	}
	for _, r := range run.Results {
		if r.Average != 4.0 {
			t.Fatalf("expected average 4.0, got %v", r.Average)
		}
	}

	var names []string
	for _, ev := range events {
		names = append(names, ev.Name)
	}
	wantPrefix := []string{"status", "status", "progress", "progress", "complete"}
	if len(names) != len(wantPrefix) {
		t.Fatalf("expected events %v, got %v", wantPrefix, names)
	}
	for i, w := range wantPrefix {
		if names[i] != w {
			t.Fatalf("event %d: expected %q, got %q", i, w, names[i])
		}
	}
}

func TestHarness_WebSearchShortcutsRetrievalAndFaithfulness(t *testing.T) {
	judge := &scriptedJudgeLLM{fallback: `{"score": 1, "reason": "should not be used"}`}
	agent := func(ctx context.Context, q Question) (AgentOutcome, error) {
		return AgentOutcome{
			Answer:      "answered from the web",
			ToolsCalled: []string{"web_search"},
		}, nil
	}
	h := &Harness{LLM: judge, Model: "test-model", Agent: agent}
	run, err := h.Run(context.Background(), "run-2", "kb1", []Question{{Question: "What's new today?"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := run.Results[0]
	if r.Retrieval.Score != 5 || r.Retrieval.Reason != "answered via web" {
		t.Fatalf("expected retrieval web shortcut, got %+v", r.Retrieval)
	}
	if r.Faithfulness.Score != 5 || r.Faithfulness.Reason != "answered via web" {
		t.Fatalf("expected faithfulness web shortcut, got %+v", r.Faithfulness)
	}
}

func TestHarness_NoRetrievalAndNoToolScoresZero(t *testing.T) {
	judge := &scriptedJudgeLLM{fallback: `{"score": 4, "reason": "n/a"}`}
	agent := func(ctx context.Context, q Question) (AgentOutcome, error) {
		return AgentOutcome{Answer: "a guess with no grounding"}, nil
	}
	h := &Harness{LLM: judge, Model: "test-model", Agent: agent}
	run, err := h.Run(context.Background(), "run-3", "kb1", []Question{{Question: "Unanswerable?"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Results[0].Retrieval.Score != 0 {
		t.Fatalf("expected retrieval score 0 with no retrieval and no tool, got %+v", run.Results[0].Retrieval)
	}
}

func TestHarness_ToolJudgeZerosWhenExpectedToolNeverCalled(t *testing.T) {
	judge := &scriptedJudgeLLM{fallback: `{"score": 4, "reason": "n/a"}`}
	agent := func(ctx context.Context, q Question) (AgentOutcome, error) {
		return AgentOutcome{Answer: "an answer", RetrievedText: "text", ToolsCalled: nil}, nil
	}
	h := &Harness{LLM: judge, Model: "test-model", Agent: agent}
	run, err := h.Run(context.Background(), "run-4", "kb1", []Question{
		{Question: "Needs a tool", ExpectedTools: []string{"search_knowledge"}},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Results[0].Tool.Score != 0 {
		t.Fatalf("expected tool score 0 when an expected tool was never called, got %+v", run.Results[0].Tool)
	}
}

func TestHarness_AgentFailurePropagatesAsFailedRunNotSilentSwallow(t *testing.T) {
	agent := func(ctx context.Context, q Question) (AgentOutcome, error) {
		return AgentOutcome{}, fmt.Errorf("boom")
	}
	h := &Harness{Agent: agent}
	var sawError bool
	run, err := h.Run(context.Background(), "run-5", "kb1", []Question{{Question: "Q1"}, {Question: "Q2"}}, func(ev Event) {
		if ev.Name == "error" {
			sawError = true
		}
	})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if run.Status != StatusFailed {
		t.Fatalf("expected failed status, got %v", run.Status)
	}
	if !sawError {
		t.Fatalf("expected an error event to be emitted")
	}
	if run.Completed != 0 {
		t.Fatalf("expected no completed questions after first-question failure, got %d", run.Completed)
	}
}

func TestHarness_PersistsRunForReconnectReconstruction(t *testing.T) {
	judge := &scriptedJudgeLLM{fallback: `{"score": 3, "reason": "ok"}`}
	agent := func(ctx context.Context, q Question) (AgentOutcome, error) {
		return AgentOutcome{Answer: "a", RetrievedText: "b", ToolsCalled: []string{"search_knowledge"}}, nil
	}
	store := NewMemoryStore()
	h := &Harness{LLM: judge, Model: "test-model", Agent: agent, Store: store}
	_, err := h.Run(context.Background(), "run-6", "kb1", []Question{{Question: "Q"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reloaded, err := store.Load(context.Background(), "run-6")
	if err != nil {
		t.Fatalf("unexpected error loading persisted run: %v", err)
	}
	if reloaded.Status != StatusCompleted || len(reloaded.Results) != 1 {
		t.Fatalf("expected reloaded run to reflect completed state, got %+v", reloaded)
	}
}

func TestParseScore_ClampsOutOfRangeValues(t *testing.T) {
	s, err := parseScore(`{"score": 9, "reason": "too high"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Score != 5 {
		t.Fatalf("expected score clamped to 5, got %d", s.Score)
	}
}

func TestWriteSSE_FormatsNamedEvent(t *testing.T) {
	rec := &recorderWriter{}
	if err := WriteSSE(rec, Event{Name: "progress", Data: map[string]int{"completed": 1}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := rec.buf.String()
	if !strings.HasPrefix(out, "event: progress\ndata: ") {
		t.Fatalf("unexpected SSE output: %q", out)
	}
	if !strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected trailing blank line, got %q", out)
	}
}
