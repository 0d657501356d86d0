package react

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ragquery/internal/adaptive"
	"ragquery/internal/llm"
	"ragquery/internal/observability"
	"ragquery/internal/tools"
)

const defaultMaxSteps = 10

const systemPromptTemplate = `You answer questions by reasoning step by step and calling tools when needed.
At each step, respond with either:
Thought: <your reasoning>
Action: <tool name>
Action Input: <JSON object matching the tool's parameters>

or, once you have enough information:
Thought: <your reasoning>
Answer: <your final answer>

Do not write an Observation yourself; it will be provided after each Action.
Available tools:
%s`

// Driver runs the ReAct loop: feed the transcript to the LLM, parse its
// response, dispatch the named tool, append the observation, repeat.
type Driver struct {
	LLM      llm.Provider
	Model    string
	Tools    tools.Registry
	MaxSteps int

	// Adaptive, when set, observes each dispatched tool call and may rebuild
	// the context mid-loop per its configured thresholds. The refreshed
	// context is injected into the transcript as a new user turn; the tool
	// itself is never re-invoked.
	Adaptive *adaptive.Manager
	// IsFollowUp tells the adaptive manager whether the message that
	// started this loop was a follow-up to the prior turn, one of its four
	// rebuild triggers. The driver has no way to know this on its own.
	IsFollowUp bool
}

func (d *Driver) maxSteps() int {
	if d.MaxSteps > 0 {
		return d.MaxSteps
	}
	return defaultMaxSteps
}

// Chat runs the loop to completion (an Answer, a hard-stop tool
// observation, max steps, or an LLM error outlasting its retry budget) and
// returns the structured result alongside the raw interleaved trace.
func (d *Driver) Chat(ctx context.Context, enrichedMessage string) (Result, error) {
	sysPrompt := fmt.Sprintf(systemPromptTemplate, describeTools(d.Tools))
	messages := []llm.Message{
		{Role: "system", Content: sysPrompt},
		{Role: "user", Content: enrichedMessage},
	}

	var (
		rawTrace  strings.Builder
		thoughts  []string
		toolCalls []ToolCallRecord
		lastThought string
	)
	state := StateAwaitingLLM

	for step := 0; step < d.maxSteps(); step++ {
		resp, err := d.callLLMWithRetry(ctx, messages)
		if err != nil {
			state = StateFailed
			observability.LoggerWithTrace(ctx).Error().Err(err).Msg("react_llm_failed")
			return d.finish(rawTrace.String(), thoughts, toolCalls, state)
		}
		rawTrace.WriteString(resp.Content)
		rawTrace.WriteString("\n")
		messages = append(messages, llm.Message{Role: "assistant", Content: resp.Content})

		seg := parseSegment(resp.Content)
		for _, t := range seg.thoughts {
			if t != lastThought {
				thoughts = append(thoughts, t)
				lastThought = t
			}
		}

		if seg.isFinal {
			state = StateEmittingAnswer
			answer, hasMermaid := detectMermaid(seg.answer)
			return Result{
				RawTrace:   rawTrace.String(),
				Thoughts:   thoughts,
				ToolCalls:  toolCalls,
				Answer:     answer,
				State:      state,
				HasMermaid: hasMermaid,
			}, nil
		}

		if seg.action == "" {
			// Malformed step: neither an Action nor an Answer. Nudge the
			// model and let the step budget bound how long this persists.
			messages = append(messages, llm.Message{Role: "user", Content: "Respond with either an Action/Action Input pair or an Answer."})
			continue
		}

		state = StateDispatchingTool
		args := toJSONArgs(seg.input, primaryArgKey(seg.action))
		payload, derr := d.Tools.Dispatch(ctx, seg.action, args)
		observation := decodeObservation(payload)
		if derr != nil {
			observation = fmt.Sprintf("%s failed: %v", seg.action, derr)
		}
		toolCalls = append(toolCalls, ToolCallRecord{Name: seg.action, Input: seg.input, Observation: observation})

		if isHardStop(observation) {
			state = StateFailed
			rawTrace.WriteString("Observation: " + observation + "\n")
			return d.finish(rawTrace.String(), thoughts, toolCalls, state)
		}

		state = StateObserving
		rawTrace.WriteString("Observation: " + observation + "\n")
		messages = append(messages, llm.Message{Role: "user", Content: "Observation: " + observation})

		if d.Adaptive != nil {
			d.Adaptive.RecordToolCall(adaptive.ToolCall{Name: seg.action, Input: string(args), Output: observation})
			if due, reason := d.Adaptive.ShouldUpdate(d.IsFollowUp); due {
				if next, err := d.Adaptive.UpdateContext(ctx); err == nil {
					observability.LoggerWithTrace(ctx).Info().Str("reason", reason).Msg("react_adaptive_context_rebuilt")
					messages = append(messages, llm.Message{Role: "user", Content: "## Updated Context\n" + next})
					rawTrace.WriteString("## Updated Context\n" + next + "\n")
				}
			}
		}
	}

	state = StateFailed
	return d.finish(rawTrace.String(), thoughts, toolCalls, state)
}

// callLLMWithRetry makes one LLM call, retrying once on transport error
// per §7's "LLM errors propagate after one retry" rule.
func (d *Driver) callLLMWithRetry(ctx context.Context, messages []llm.Message) (llm.Message, error) {
	resp, err := d.LLM.Chat(ctx, messages, nil, d.Model)
	if err == nil {
		return resp, nil
	}
	observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("react_llm_retry")
	return d.LLM.Chat(ctx, messages, nil, d.Model)
}

// finish produces the best-effort result when the loop ends without a
// clean Answer segment: max steps exceeded, a tool hard stop, or an LLM
// failure. It makes one last attempt to recover an Answer: marker anywhere
// in the accumulated trace before giving up to an empty answer.
func (d *Driver) finish(rawTrace string, thoughts []string, toolCalls []ToolCallRecord, state State) (Result, error) {
	answer := ""
	hasMermaid := false
	if seg := parseSegment(rawTrace); seg.isFinal {
		answer, hasMermaid = detectMermaid(seg.answer)
	}
	return Result{
		RawTrace:   rawTrace,
		Thoughts:   thoughts,
		ToolCalls:  toolCalls,
		Answer:     answer,
		State:      state,
		HasMermaid: hasMermaid,
	}, nil
}

// decodeObservation turns a dispatch payload back into the bare text a
// canonical tool returned. The registry JSON-marshals whatever Call
// returns, so a plain string observation comes back as a quoted JSON
// string; anything else (structured error payloads) is passed through as
// its raw JSON text.
func decodeObservation(payload []byte) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return string(payload)
}

func isHardStop(observation string) bool {
	return strings.Contains(observation, "disabled for this query")
}

func describeTools(reg tools.Registry) string {
	if reg == nil {
		return "(none)"
	}
	var b strings.Builder
	for _, s := range reg.Schemas() {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	return b.String()
}

// primaryArgKey is the JSON field a bare (non-JSON-object) Action Input
// string is wrapped under, keyed by the canonical tools' single required
// argument.
func primaryArgKey(toolName string) string {
	switch toolName {
	case "summarize_topic":
		return "topic"
	case "fetch_webpage":
		return "url"
	case "generate_diagram":
		return "description"
	case "get_current_datetime":
		return ""
	default:
		return "query"
	}
}

// toJSONArgs turns an Action Input string into the JSON object Dispatch
// expects. A model that already emitted a JSON object is passed through
// unchanged; a bare quoted or unquoted string is wrapped under key.
func toJSONArgs(raw, key string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	var probe map[string]any
	if err := json.Unmarshal([]byte(raw), &probe); err == nil {
		return json.RawMessage(raw)
	}
	if key == "" {
		return json.RawMessage(`{}`)
	}
	value := strings.Trim(raw, "\"'")
	b, _ := json.Marshal(map[string]string{key: value})
	return b
}
