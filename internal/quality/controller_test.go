package quality

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ragquery/internal/llm"
)

type scriptedJudge struct {
	responses []string
	calls     int
}

func (s *scriptedJudge) Chat(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema, model string) (llm.Message, error) {
	if s.calls >= len(s.responses) {
		return llm.Message{}, errors.New("judge script exhausted")
	}
	r := s.responses[s.calls]
	s.calls++
	return llm.Message{Role: "assistant", Content: r}, nil
}

func (s *scriptedJudge) ChatStream(ctx context.Context, msgs []llm.Message, schemas []llm.ToolSchema, model string, h llm.StreamHandler) error {
	return errors.New("not implemented")
}

func TestController_PassesOnFirstJudgment(t *testing.T) {
	c := &Controller{LLM: &scriptedJudge{responses: []string{`{"pass": true, "reason": "on topic and substantive"}`}}}
	answer, ok, err := c.Evaluate(context.Background(), "What is the capital of France?", "Paris is the capital of France.", nil, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected pass")
	}
	if answer != "Paris is the capital of France." {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestController_RetriesThenPasses(t *testing.T) {
	judge := &scriptedJudge{responses: []string{
		`{"pass": false, "reason": "too vague"}`,
		`{"pass": true, "reason": "better now"}`,
	}}
	retryCalls := 0
	retry := func(ctx context.Context, msg string) (string, error) {
		retryCalls++
		if !strings.Contains(msg, "too vague") {
			t.Fatalf("expected retry message to include failure reason, got %q", msg)
		}
		if !strings.Contains(msg, "Do not call web_search") {
			t.Fatalf("expected retry message to forbid network search, got %q", msg)
		}
		return "A much more detailed and substantive answer about the topic.", nil
	}
	c := &Controller{LLM: judge}
	answer, ok, err := c.Evaluate(context.Background(), "Explain X", "short", nil, "some retrieved context", retry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected eventual pass")
	}
	if retryCalls != 1 {
		t.Fatalf("expected exactly one retry, got %d", retryCalls)
	}
	if answer != "A much more detailed and substantive answer about the topic." {
		t.Fatalf("unexpected final answer: %q", answer)
	}
}

func TestController_FallsBackToLengthAfterExhaustingRetries(t *testing.T) {
	responses := make([]string, 0, maxRetries+1)
	for i := 0; i <= maxRetries; i++ {
		responses = append(responses, `{"pass": false, "reason": "still not good enough"}`)
	}
	judge := &scriptedJudge{responses: responses}
	longAnswer := strings.Repeat("word ", 30)
	retry := func(ctx context.Context, msg string) (string, error) {
		return longAnswer, nil
	}
	c := &Controller{LLM: judge}
	answer, ok, err := c.Evaluate(context.Background(), "Explain X", "short answer", nil, "", retry)
	if err != nil {
		t.Fatalf("expected length fallback to avoid an error, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false when only the length fallback accepted the answer")
	}
	if answer != longAnswer {
		t.Fatalf("expected fallback answer from last retry, got %q", answer)
	}
}

func TestController_FailsWhenBothJudgmentAndLengthFallbackFail(t *testing.T) {
	responses := make([]string, 0, maxRetries+1)
	for i := 0; i <= maxRetries; i++ {
		responses = append(responses, `{"pass": false, "reason": "nope"}`)
	}
	judge := &scriptedJudge{responses: responses}
	retry := func(ctx context.Context, msg string) (string, error) {
		return "too short", nil
	}
	c := &Controller{LLM: judge}
	_, ok, err := c.Evaluate(context.Background(), "Explain X", "short", nil, "", retry)
	if ok {
		t.Fatalf("expected ok=false")
	}
	if err == nil {
		t.Fatalf("expected an error when neither judgment nor length fallback pass")
	}
}

func TestController_NormalizesMermaidBeforeJudging(t *testing.T) {
	judge := &scriptedJudge{responses: []string{`{"pass": true, "reason": "fine"}`}}
	c := &Controller{LLM: judge}
	bare := "flowchart TD\nA-->B"
	answer, _, err := c.Evaluate(context.Background(), "draw it", bare, nil, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(answer, "[MERMAID_DIAGRAM]") {
		t.Fatalf("expected mermaid-wrapped answer, got %q", answer)
	}
}
