package canonical

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"ragquery/internal/llm"
)

const (
	diagramAnalysisPrompt = `Analyze the following description and list, in plain prose, the entities, steps, and relationships that a diagram of it should show. Do not produce diagram syntax yet.`
	diagramSyntaxPrompt   = `Convert the following analysis into a single Mermaid diagram. Output only the Mermaid code (starting with "flowchart", "sequenceDiagram", or similar), no prose, no code fences.`
)

var mermaidStartRe = regexp.MustCompile(`(?i)^\s*(flowchart\s+(TD|LR|TB|RL|BT)|sequenceDiagram|graph\s+(TD|LR|TB|RL|BT))`)

// generateDiagramTool runs a two-stage pipeline: one LLM call to reason
// about what the diagram needs to contain, a second to emit Mermaid syntax
// from that analysis. Separating analysis from syntax keeps the model from
// conflating "what to draw" with "how Mermaid spells it", which in
// practice is what produces malformed diagrams from a single combined
// prompt.
type generateDiagramTool struct{ tc *ToolContext }

func NewGenerateDiagramTool(tc *ToolContext) *generateDiagramTool { return &generateDiagramTool{tc: tc} }

func (t *generateDiagramTool) Name() string { return "generate_diagram" }

func (t *generateDiagramTool) JSONSchema() map[string]any {
	return map[string]any{
		"description": "Generate a Mermaid diagram from a description. Call search_knowledge/deep_search/summarize_topic first to ground the diagram in retrieved content.",
		"parameters": map[string]any{
			"type":     "object",
			"required": []string{"description"},
			"properties": map[string]any{
				"description": map[string]any{"type": "string"},
				"chartType":   map[string]any{"type": "string", "description": "Optional hint: flowchart, sequenceDiagram, etc."},
			},
		},
	}
}

func (t *generateDiagramTool) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	var args struct {
		Description string `json:"description"`
		ChartType   string `json:"chartType"`
	}
	if err := json.Unmarshal(raw, &args); err != nil || strings.TrimSpace(args.Description) == "" {
		t.tc.recordInvalid(t.Name())
		return "generate_diagram requires a non-empty \"description\" string.", nil
	}
	if t.tc.LLM == nil {
		return "Diagram generation is not configured for this deployment.", nil
	}

	analysisReq := args.Description
	if args.ChartType != "" {
		analysisReq = "Preferred chart type: " + args.ChartType + "\n" + analysisReq
	}
	analysis, err := t.tc.LLM.Chat(ctx, []llm.Message{
		{Role: "system", Content: diagramAnalysisPrompt},
		{Role: "user", Content: analysisReq},
	}, nil, t.tc.Model)
	if err != nil {
		return "generate_diagram failed during analysis: " + err.Error(), nil
	}

	syntax, err := t.tc.LLM.Chat(ctx, []llm.Message{
		{Role: "system", Content: diagramSyntaxPrompt},
		{Role: "user", Content: analysis.Content},
	}, nil, t.tc.Model)
	if err != nil {
		return "generate_diagram failed during syntax generation: " + err.Error(), nil
	}

	return wrapMermaid(syntax.Content), nil
}

// wrapMermaid cleans a raw Mermaid snippet and wraps it in the
// [MERMAID_DIAGRAM]...[/MERMAID_DIAGRAM] markers the ReAct loop's output
// parser looks for. It is idempotent: a snippet that already carries the
// tags is passed through unchanged.
func wrapMermaid(body string) string {
	body = strings.TrimSpace(body)
	if strings.Contains(body, "[MERMAID_DIAGRAM]") {
		return body
	}
	body = strings.TrimPrefix(body, "```mermaid")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if !mermaidStartRe.MatchString(body) {
		body = "flowchart TD\n" + body
	}
	return "[MERMAID_DIAGRAM]\n" + body + "\n[/MERMAID_DIAGRAM]"
}
