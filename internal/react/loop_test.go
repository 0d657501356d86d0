package react

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"ragquery/internal/adaptive"
	"ragquery/internal/llm"
	"ragquery/internal/tools"
)

// scriptedLLM returns one canned completion per call, in order.
type scriptedLLM struct {
	responses []string
	calls     int
	failFirst bool
}

func (s *scriptedLLM) Chat(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string) (llm.Message, error) {
	if s.failFirst {
		s.failFirst = false
		return llm.Message{}, errors.New("transport error")
	}
	if s.calls >= len(s.responses) {
		return llm.Message{Role: "assistant", Content: "Answer: out of script"}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return llm.Message{Role: "assistant", Content: resp}, nil
}

func (s *scriptedLLM) ChatStream(ctx context.Context, msgs []llm.Message, toolSchemas []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return errors.New("not implemented")
}

type stubTool struct {
	name   string
	result string
}

func (t *stubTool) Name() string { return t.name }
func (t *stubTool) JSONSchema() map[string]any {
	return map[string]any{"description": "stub", "parameters": map[string]any{"type": "object"}}
}
func (t *stubTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	return t.result, nil
}

func newRegistry(tl ...tools.Tool) tools.Registry {
	r := tools.NewRegistry()
	for _, t := range tl {
		r.Register(t)
	}
	return r
}

func TestDriver_AnswersDirectlyWithoutToolCalls(t *testing.T) {
	d := &Driver{
		LLM:   &scriptedLLM{responses: []string{"Thought: I know this.\nAnswer: Paris is the capital of France."}},
		Tools: newRegistry(),
		Model: "test-model",
	}
	res, err := d.Chat(context.Background(), "## Question\nWhat is the capital of France?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != "Paris is the capital of France." {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}
	if res.State != StateEmittingAnswer {
		t.Fatalf("expected emitting_answer state, got %v", res.State)
	}
	if len(res.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %v", res.ToolCalls)
	}
}

func TestDriver_DispatchesToolThenAnswers(t *testing.T) {
	d := &Driver{
		LLM: &scriptedLLM{responses: []string{
			"Thought: I should search.\nAction: search_knowledge\nAction Input: {\"query\": \"founding date\"}",
			"Thought: Now I know.\nAnswer: The company was founded in 1999.",
		}},
		Tools: newRegistry(&stubTool{name: "search_knowledge", result: "Founded in 1999."}),
		Model: "test-model",
	}
	res, err := d.Chat(context.Background(), "## Question\nWhen was it founded?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != "The company was founded in 1999." {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(res.ToolCalls))
	}
	if res.ToolCalls[0].Observation != "Founded in 1999." {
		t.Fatalf("expected decoded plain-string observation, got %q", res.ToolCalls[0].Observation)
	}
}

func TestDriver_WrapsBareActionInputAsPrimaryArg(t *testing.T) {
	d := &Driver{
		LLM: &scriptedLLM{responses: []string{
			"Thought: searching\nAction: fetch_webpage\nAction Input: \"https://example.com\"",
			"Answer: done",
		}},
		Tools: newRegistry(&stubTool{name: "fetch_webpage", result: "page body"}),
		Model: "test-model",
	}
	res, err := d.Chat(context.Background(), "## Question\nfetch it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(res.ToolCalls))
	}
}

func TestDriver_StopsOnToolHardStop(t *testing.T) {
	d := &Driver{
		LLM: &scriptedLLM{responses: []string{
			"Thought: try web\nAction: web_search\nAction Input: {\"query\": \"x\"}",
		}},
		Tools: newRegistry(&stubTool{name: "web_search", result: "web_search has received three consecutive invalid calls and is now disabled for this query. Answer from what is already known."}),
		Model: "test-model",
	}
	res, err := d.Chat(context.Background(), "## Question\nsearch the web")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFailed {
		t.Fatalf("expected failed state after hard stop, got %v", res.State)
	}
	if res.Answer != "" {
		t.Fatalf("expected empty answer on hard stop, got %q", res.Answer)
	}
}

func TestDriver_FailsClosedAfterMaxSteps(t *testing.T) {
	d := &Driver{
		LLM: &scriptedLLM{responses: []string{
			"Thought: loop\nAction: search_knowledge\nAction Input: {\"query\": \"a\"}",
			"Thought: loop\nAction: search_knowledge\nAction Input: {\"query\": \"b\"}",
			"Thought: loop\nAction: search_knowledge\nAction Input: {\"query\": \"c\"}",
		}},
		Tools:    newRegistry(&stubTool{name: "search_knowledge", result: "nothing useful"}),
		Model:    "test-model",
		MaxSteps: 2,
	}
	res, err := d.Chat(context.Background(), "## Question\nkeep digging")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.State != StateFailed {
		t.Fatalf("expected failed state after exceeding max steps, got %v", res.State)
	}
	if len(res.ToolCalls) != 2 {
		t.Fatalf("expected exactly MaxSteps tool calls, got %d", len(res.ToolCalls))
	}
}

func TestDriver_RetriesOnceOnTransportErrorThenSucceeds(t *testing.T) {
	d := &Driver{
		LLM: &scriptedLLM{
			failFirst: true,
			responses: []string{"Answer: recovered"},
		},
		Tools: newRegistry(),
		Model: "test-model",
	}
	res, err := d.Chat(context.Background(), "## Question\nretry me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Answer != "recovered" {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}
}

func TestDriver_RebuildsContextWhenAdaptiveManagerDue(t *testing.T) {
	rebuilt := false
	mgr := adaptive.NewManager("kb1", "sess1", "initial context", nil,
		adaptive.Thresholds{ToolCallsSinceRebuild: 1},
		func(ctx context.Context, s *adaptive.State) (string, error) {
			rebuilt = true
			return "refreshed context", nil
		})
	d := &Driver{
		LLM: &scriptedLLM{responses: []string{
			"Thought: look it up\nAction: search_knowledge\nAction Input: {\"query\": \"x\"}",
			"Answer: done",
		}},
		Tools:    newRegistry(&stubTool{name: "search_knowledge", result: "some result text"}),
		Model:    "test-model",
		Adaptive: mgr,
	}
	_, err := d.Chat(context.Background(), "## Question\nlook something up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected adaptive manager's Rebuild to have been invoked")
	}
	if mgr.ContextString() != "refreshed context" {
		t.Fatalf("expected manager context string updated, got %q", mgr.ContextString())
	}
}

func TestDriver_DetectsMermaidInFinalAnswer(t *testing.T) {
	d := &Driver{
		LLM: &scriptedLLM{responses: []string{
			"Answer: flowchart TD\nA-->B",
		}},
		Tools: newRegistry(),
		Model: "test-model",
	}
	res, err := d.Chat(context.Background(), "## Question\ndraw it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.HasMermaid {
		t.Fatalf("expected HasMermaid true, got false for answer %q", res.Answer)
	}
}
