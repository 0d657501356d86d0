package react

import (
	"regexp"
	"strings"
)

var (
	thoughtRe       = regexp.MustCompile(`(?im)^\s*Thought:\s*(.*)$`)
	actionRe        = regexp.MustCompile(`(?im)^\s*Action:\s*(.*)$`)
	actionInputRe   = regexp.MustCompile(`(?im)^\s*Action Input:\s*(.*)$`)
	observationRe   = regexp.MustCompile(`(?im)^\s*Observation:`)
	answerRe        = regexp.MustCompile(`(?im)^\s*Answer:\s*`)
	mermaidBlockRe  = regexp.MustCompile(`(?is)\[MERMAID_DIAGRAM\](.*?)\[/MERMAID_DIAGRAM\]`)
	bareMermaidRe   = regexp.MustCompile(`(?im)^\s*(flowchart\s+(TD|LR|TB|RL|BT)|sequenceDiagram)\b`)
	actionInputRefRe = regexp.MustCompile(`(?i)\baction input\b`)
)

// segment is one parsed chunk of model output between tool dispatches.
type segment struct {
	thoughts []string
	action   string // tool name, empty if none
	input    string // raw action input text
	answer   string // non-empty when this segment terminates the loop
	isFinal  bool
}

// parseSegment extracts the next actionable piece from one LLM completion.
// Model completions are prompted to stop after one Action Input (or an
// Answer), but nothing stops a model from hallucinating its own
// Observation/next Thought — any text from the first Observation: marker
// onward is discarded since that's the driver's job to produce, not the
// model's.
func parseSegment(text string) segment {
	if idx := observationRe.FindStringIndex(text); idx != nil {
		text = text[:idx[0]]
	}

	var seg segment
	seg.thoughts = extractThoughts(text)

	if loc := answerRe.FindStringIndex(text); loc != nil {
		answer := text[loc[1]:]
		// Strip any trailing ReAct fragments a model appended after the
		// answer (another Thought:/Action: it shouldn't have emitted).
		if idx := thoughtRe.FindStringIndex(answer); idx != nil {
			answer = answer[:idx[0]]
		}
		if idx := actionRe.FindStringIndex(answer); idx != nil {
			answer = answer[:idx[0]]
		}
		seg.answer = cleanAnswer(answer)
		seg.isFinal = true
		return seg
	}

	if m := actionRe.FindStringSubmatch(text); m != nil {
		seg.action = strings.TrimSpace(m[1])
		if im := actionInputRe.FindStringSubmatch(text); im != nil {
			seg.input = strings.TrimSpace(im[1])
		}
	}
	return seg
}

// extractThoughts pulls every Thought: line, filters ones that just
// reference "Action Input" (boilerplate some models echo), and
// deduplicates consecutive repeats.
func extractThoughts(text string) []string {
	matches := thoughtRe.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	var last string
	for _, m := range matches {
		t := strings.TrimSpace(m[1])
		if t == "" || actionInputRefRe.MatchString(t) {
			continue
		}
		if t == last {
			continue
		}
		out = append(out, t)
		last = t
	}
	return out
}

func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	s = strings.TrimSpace(s)
	return s
}

// NormalizeMermaid is detectMermaid's exported form, used both as the
// driver's own post-parse step and, by the Quality Evaluator, as the
// pre/post-check that normalizes diagram formatting without an LLM call.
func NormalizeMermaid(s string) (string, bool) {
	return detectMermaid(s)
}

// detectMermaid reports whether s contains a well-formed
// [MERMAID_DIAGRAM]...[/MERMAID_DIAGRAM] block, or a bare Mermaid
// flowchart/sequenceDiagram that should be auto-wrapped, returning the
// (possibly rewritten) text and whether a diagram was found.
func detectMermaid(s string) (string, bool) {
	if mermaidBlockRe.MatchString(s) {
		return s, true
	}
	if loc := bareMermaidRe.FindStringIndex(s); loc != nil {
		before := s[:loc[0]]
		after := s[loc[0]:]
		return before + "[MERMAID_DIAGRAM]\n" + after + "\n[/MERMAID_DIAGRAM]", true
	}
	return s, false
}
