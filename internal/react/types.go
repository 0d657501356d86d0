// Package react implements the ReAct agent loop as an explicit textual
// trace state machine: the driver feeds the transcript to the LLM, parses
// the response for Thought/Action/Action Input/Answer markers, dispatches
// the named tool, appends its observation, and repeats until an Answer
// appears or the step budget is exhausted. This is a different mechanism
// from a native-function-calling loop; the contract here requires a
// line-oriented trace the caller can inspect and persist, not a sequence
// of typed tool calls.
package react

// State is one of the driver's explicit states.
type State string

const (
	StateAwaitingLLM    State = "awaiting_llm"
	StateDispatchingTool State = "dispatching_tool"
	StateObserving      State = "observing"
	StateEmittingAnswer State = "emitting_answer"
	StateFailed         State = "failed"
)

// ToolCallRecord is one dispatched tool call within a trace.
type ToolCallRecord struct {
	Name        string
	Input       string
	Observation string
}

// Result is chat's structured view over the raw trace; RawTrace alone
// satisfies the contract, the rest is provided because callers (the
// Quality Evaluator, the Evaluator Harness) need the parsed pieces without
// re-parsing the trace themselves.
type Result struct {
	RawTrace  string
	Thoughts  []string
	ToolCalls []ToolCallRecord
	Answer    string
	State     State
	// HasMermaid is true when Answer contains a well-formed
	// [MERMAID_DIAGRAM]...[/MERMAID_DIAGRAM] block.
	HasMermaid bool
}
