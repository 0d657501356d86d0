package canonical

import (
	"ragquery/internal/tools"
)

// BuildRegistry registers all nine canonical tools against tc. searxngURL
// configures web_search; an empty value leaves web_search reporting itself
// unavailable rather than omitting it, so the agent's tool schema is stable
// across deployments.
func BuildRegistry(tc *ToolContext, searxngURL string) tools.Registry {
	r := tools.NewRegistry()
	r.Register(NewSearchKnowledgeTool(tc))
	r.Register(NewDeepSearchTool(tc))
	r.Register(NewKeywordSearchTool(tc))
	r.Register(NewGraphSearchTool(tc))
	r.Register(NewSummarizeTopicTool(tc))
	r.Register(NewWebSearchTool(tc, searxngURL))
	r.Register(NewFetchWebpageTool(tc))
	r.Register(NewGetCurrentDatetimeTool(tc))
	r.Register(NewGenerateDiagramTool(tc))
	return r
}
