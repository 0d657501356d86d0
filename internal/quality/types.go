// Package quality implements the Quality Evaluator & Retry Controller: a
// single LLM judge checks a finished answer against four criteria, a
// non-LLM pre/post-check normalizes Mermaid diagram formatting, and on
// failure the controller re-invokes the agent with a bounded retry budget
// before falling back to a length-based acceptance rule. Grounded on the
// teacher's agent/critic.go (LLM-judge-then-revise shape: a single
// structured verdict driving a retry) and agent/success.go (a pluggable,
// history-aware stopping rule), generalized to the spec's four-point judge
// contract.
package quality

// Verdict is the judge's structured output.
type Verdict struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason"`
}
