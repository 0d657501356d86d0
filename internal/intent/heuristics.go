package intent

import (
	"regexp"
	"strings"
)

var (
	greetingRe   = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|howdy|good (morning|afternoon|evening)|你好|您好)\b\W*$`)
	smallTalkRe  = regexp.MustCompile(`(?i)^\s*(how are you|what'?s up|thanks|thank you|nice to meet you)\b`)
	datetimeRe   = regexp.MustCompile(`(?i)\b(what (time|day|date) is it|current (time|date)|today'?s date)\b`)
	diagramRe    = regexp.MustCompile(`(?i)\b(diagram|flowchart|chart|graph it out|draw .*(diagram|chart)|sequence diagram|mermaid)\b`)
	summaryRe    = regexp.MustCompile(`(?i)\b(summarize|summary of|tl;?dr|give me an overview)\b`)
	comparisonRe = regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|difference between|which is better)\b`)
	webSearchRe  = regexp.MustCompile(`(?i)\b(latest|current news|search the web|look (this|it) up online|recent)\b`)

	// refinementRe matches short follow-up complaints/refinements that, after
	// a diagram turn, should inherit the diagram intent rather than being
	// reclassified ("redo it", "add more detail", "make it bigger").
	refinementRe = regexp.MustCompile(`(?i)^\s*(redo|again|retry|more detail|bigger|smaller|fix (it|this)|that'?s wrong|add .*(step|node)|simplify)\b`)
)

// classifyHeuristic is the rule-based fallback used when the LLM call fails
// or its response cannot be parsed as the strict JSON schema.
func classifyHeuristic(question string, history []Turn) Intent {
	q := strings.TrimSpace(question)

	if prev, ok := lastAssistantTurn(history); ok && prev.Intent == KindDrawDiagram {
		if len(q) < 60 && refinementRe.MatchString(q) {
			return Intent{
				Intent:             KindDrawDiagram,
				NeedsKnowledgeBase: true,
				NeedsMemory:        false,
				Keywords:           keywordsOf(q),
				SuggestedTool:      "generate_diagram",
				Confidence:         0.6,
			}
		}
	}

	switch {
	case greetingRe.MatchString(q):
		return Intent{Intent: KindGreeting, Confidence: 0.9}
	case smallTalkRe.MatchString(q):
		return Intent{Intent: KindSmallTalk, Confidence: 0.8}
	case datetimeRe.MatchString(q):
		return Intent{Intent: KindDatetime, NeedsKnowledgeBase: false, SuggestedTool: "get_current_datetime", Confidence: 0.85}
	case diagramRe.MatchString(q):
		return Intent{Intent: KindDrawDiagram, NeedsKnowledgeBase: true, Keywords: keywordsOf(q), SuggestedTool: "generate_diagram", Confidence: 0.7}
	case summaryRe.MatchString(q):
		return Intent{Intent: KindDocumentSummary, NeedsKnowledgeBase: true, Keywords: keywordsOf(q), SuggestedTool: "summarize_topic", Confidence: 0.7}
	case comparisonRe.MatchString(q):
		return Intent{Intent: KindComparison, NeedsKnowledgeBase: true, NeedsMemory: true, Keywords: keywordsOf(q), SuggestedTool: "deep_search", Confidence: 0.65}
	case webSearchRe.MatchString(q):
		return Intent{Intent: KindWebSearch, NeedsKnowledgeBase: true, Keywords: keywordsOf(q), SuggestedTool: "web_search", Confidence: 0.6}
	default:
		return Intent{Intent: KindKnowledgeQuery, NeedsKnowledgeBase: true, NeedsMemory: true, Keywords: keywordsOf(q), SuggestedTool: "search_knowledge", Confidence: 0.5}
	}
}

func keywordsOf(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	out := make([]string, 0, len(fields))
	for _, w := range fields {
		w = strings.Trim(w, ".,!?;:\"'")
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}
