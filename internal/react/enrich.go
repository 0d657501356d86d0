package react

import (
	"strings"

	"ragquery/internal/intent"
)

// BuildEnrichedMessage assembles the user turn handed to the ReAct loop:
// retrieval context, an optional intent hint, the question, and (for
// diagram intents) a mandatory reminder to ground the diagram in a search
// before calling generate_diagram.
func BuildEnrichedMessage(contextString string, in *intent.Intent, question string) string {
	var b strings.Builder
	if strings.TrimSpace(contextString) != "" {
		b.WriteString("## Retrieval Context\n")
		b.WriteString(contextString)
		b.WriteString("\n\n")
	}
	if in != nil && in.SuggestedTool != "" {
		b.WriteString("## Intent Hints\n")
		b.WriteString("Suggested tool: " + in.SuggestedTool)
		if len(in.Keywords) > 0 {
			b.WriteString("\nKeywords: " + strings.Join(in.Keywords, ", "))
		}
		b.WriteString("\n\n")
	}
	b.WriteString("## Question\n")
	b.WriteString(question)

	if in != nil && in.Intent == intent.KindDrawDiagram {
		b.WriteString("\n\nBefore calling generate_diagram, call deep_search or summarize_topic to ground the diagram in retrieved content.")
	}
	return b.String()
}
