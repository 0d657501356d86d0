package adaptive

import (
	"context"
	"strings"
	"testing"
)

func TestManager_TriggersOnToolCallCount(t *testing.T) {
	m := NewManager("kb1", "sess1", "initial", nil, Thresholds{ToolCallsSinceRebuild: 2}, nil)
	m.RecordToolCall(ToolCall{Name: "search_knowledge", Output: "a short result"})
	if ok, _ := m.ShouldUpdate(false); ok {
		t.Fatalf("expected no update yet after one call")
	}
	m.RecordToolCall(ToolCall{Name: "search_knowledge", Output: "another short result"})
	ok, reason := m.ShouldUpdate(false)
	if !ok || reason != "tool_call_count" {
		t.Fatalf("expected tool_call_count trigger, got ok=%v reason=%q", ok, reason)
	}
}

func TestManager_TriggersOnObservationTokens(t *testing.T) {
	m := NewManager("kb1", "sess1", "initial", nil, Thresholds{ObservationTokens: 10, CharsPerToken: 1}, nil)
	m.RecordToolCall(ToolCall{Name: "deep_search", Output: strings.Repeat("x", 50)})
	ok, reason := m.ShouldUpdate(false)
	if !ok || reason != "observation_tokens" {
		t.Fatalf("expected observation_tokens trigger, got ok=%v reason=%q", ok, reason)
	}
}

func TestManager_TriggersOnNewEntity(t *testing.T) {
	m := NewManager("kb1", "sess1", "initial", nil, Thresholds{ToolCallsSinceRebuild: 100}, nil)
	m.RecordToolCall(ToolCall{Name: "search_knowledge", Output: "mentions Acme Corporation for the first time"})
	ok, reason := m.ShouldUpdate(false)
	if !ok || reason != "new_entity" {
		t.Fatalf("expected new_entity trigger, got ok=%v reason=%q", ok, reason)
	}
}

func TestManager_TriggersOnFollowUp(t *testing.T) {
	m := NewManager("kb1", "sess1", "initial", nil, Thresholds{ToolCallsSinceRebuild: 100}, nil)
	if ok, _ := m.ShouldUpdate(false); ok {
		t.Fatalf("expected no trigger without a follow-up")
	}
	ok, reason := m.ShouldUpdate(true)
	if !ok || reason != "follow_up_message" {
		t.Fatalf("expected follow_up_message trigger, got ok=%v reason=%q", ok, reason)
	}
}

func TestManager_UpdateContextResetsCountersAndReplacesString(t *testing.T) {
	calls := 0
	rebuild := func(ctx context.Context, s *State) (string, error) {
		calls++
		return "rebuilt context", nil
	}
	m := NewManager("kb1", "sess1", "initial", nil, Thresholds{ToolCallsSinceRebuild: 1}, rebuild)
	m.RecordToolCall(ToolCall{Name: "search_knowledge", Output: "some new Entity Name appears"})
	if ok, _ := m.ShouldUpdate(false); !ok {
		t.Fatalf("expected an update to be due")
	}
	next, err := m.UpdateContext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != "rebuilt context" || m.ContextString() != "rebuilt context" {
		t.Fatalf("expected context string replaced, got %q", next)
	}
	if ok, _ := m.ShouldUpdate(false); ok {
		t.Fatalf("expected counters reset after update, should_update still true")
	}
	if calls != 1 {
		t.Fatalf("expected rebuild called exactly once, got %d", calls)
	}
}

func TestManager_NoRebuildFuncReturnsCurrentContext(t *testing.T) {
	m := NewManager("kb1", "sess1", "initial", nil, Thresholds{}, nil)
	next, err := m.UpdateContext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next != "initial" {
		t.Fatalf("expected unchanged context when Rebuild is nil, got %q", next)
	}
}
