// Package adaptive implements the Adaptive Context Manager: a stateful
// observer attached to one query that watches tool calls as they happen and
// decides when the context handed to the agent has gone stale enough to
// rebuild. Grounded on the teacher's OnTool/OnToolStart callback-observer
// pattern in agent/engine.go's dispatchTools, generalized into a standalone
// observer rather than an engine field, since rebuilding here means
// re-running Component C's build_context, not summarizing messages.
package adaptive

import "ragquery/internal/intent"

// Thresholds configures when should_update fires. Zero values fall back to
// the spec's defaults.
type Thresholds struct {
	// ToolCallsSinceRebuild is how many tool calls may pass before a rebuild
	// is due. Default 3.
	ToolCallsSinceRebuild int
	// ObservationTokens is the cumulative observation size (in estimated
	// tokens) that triggers a rebuild. Default 2500.
	ObservationTokens int
	// CharsPerToken mirrors ctxengine.DefaultCharsPerToken for consistent
	// token estimation; default 3.
	CharsPerToken int
}

func (t Thresholds) toolCalls() int {
	if t.ToolCallsSinceRebuild > 0 {
		return t.ToolCallsSinceRebuild
	}
	return 3
}

func (t Thresholds) observationTokens() int {
	if t.ObservationTokens > 0 {
		return t.ObservationTokens
	}
	return 2500
}

func (t Thresholds) charsPerToken() int {
	if t.CharsPerToken > 0 {
		return t.CharsPerToken
	}
	return 3
}

// ToolCall is one observed (name, input, output) triple, the argument of
// Manager.RecordToolCall.
type ToolCall struct {
	Name   string
	Input  string
	Output string
}

// State is the manager's attached-to-a-query state: kb/session ids, intent,
// current context string, entity set, tool-call count and cumulative
// observation tokens. It does not hold the chat history.
type State struct {
	KBID        string
	SessionID   string
	Intent      *intent.Intent
	ContextString string

	Entities              map[string]struct{}
	ToolCallsSinceRebuild int
	ObservationTokens     int
}

func newState(kbID, sessionID, initialContext string, in *intent.Intent) *State {
	return &State{
		KBID:          kbID,
		SessionID:     sessionID,
		Intent:        in,
		ContextString: initialContext,
		Entities:      make(map[string]struct{}),
	}
}
