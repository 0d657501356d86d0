package intent

import (
	"context"
	"encoding/json"
	"strings"

	"ragquery/internal/llm"
	"ragquery/internal/observability"
)

// Analyzer runs the single-LLM-call intent classification with a
// rule-based fallback.
type Analyzer struct {
	LLM   llm.Provider
	Model string
}

func NewAnalyzer(provider llm.Provider, model string) *Analyzer {
	return &Analyzer{LLM: provider, Model: model}
}

const systemPrompt = `You classify a user's message into exactly one intent for a retrieval-augmented assistant.
Respond with strict JSON only, no prose, no code fences:
{"intent": one of "greeting","small_talk","document_summary","knowledge_query","comparison","draw_diagram","web_search","datetime","instruction",
 "needsKnowledgeBase": bool, "needsMemory": bool, "keywords": [string], "suggestedTool": string, "confidence": number 0..1}

If the previous assistant turn produced a diagram and the current message is a short refinement or complaint ("redo it", "add more detail", "that's wrong"), classify as draw_diagram again rather than a new intent.`

// Analyze classifies question given the preceding chat history. On any LLM
// or parse failure it falls back to classifyHeuristic, never returning an
// error for a malformed model response — intent classification degrades,
// it does not abort the query.
func (a *Analyzer) Analyze(ctx context.Context, question string, history []Turn) (Intent, error) {
	fallback := classifyHeuristic(question, history)

	if a.LLM == nil {
		return fallback, nil
	}

	msgs := []llm.Message{{Role: "system", Content: systemPrompt}}
	for _, h := range history {
		msgs = append(msgs, llm.Message{Role: h.Role, Content: h.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: question})

	resp, err := a.LLM.Chat(ctx, msgs, nil, a.Model)
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("intent_analyze_llm_failed")
		return fallback, nil
	}

	parsed, ok := parseIntent(resp.Content)
	if !ok {
		observability.LoggerWithTrace(ctx).Warn().Msg("intent_analyze_parse_failed")
		return fallback, nil
	}

	// Dialogue-continuity enforcement: even if the model didn't follow the
	// prompt's instruction, a short refinement after a diagram turn always
	// inherits draw_diagram.
	if prev, ok := lastAssistantTurn(history); ok && prev.Intent == KindDrawDiagram {
		if len(strings.TrimSpace(question)) < 60 && refinementRe.MatchString(question) {
			parsed.Intent = KindDrawDiagram
			parsed.SuggestedTool = "generate_diagram"
		}
	}
	return parsed, nil
}

func parseIntent(raw string) (Intent, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var out Intent
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Intent{}, false
	}
	if !validKind(out.Intent) {
		return Intent{}, false
	}
	if out.Confidence <= 0 {
		out.Confidence = 0.5
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	if out.Intent == KindGreeting || out.Intent == KindSmallTalk || out.Intent == KindDatetime {
		out.NeedsKnowledgeBase = false
	}
	return out, true
}
