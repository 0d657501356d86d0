// Package config defines the RuntimeConfig threaded explicitly through
// every component constructor. There is no global configuration singleton:
// callers load a RuntimeConfig once at process startup and pass it (or the
// narrower sub-config each component needs) down the call graph. The LLM
// and embedding clients are built from it and passed down the same way;
// internal/llm keeps only process-wide payload-logging settings and token
// counters.
package config

import "time"

// LLMConfig configures the language-model client used by intent analysis,
// the agent loop, the quality evaluator, and the evaluator harness judges.
type LLMConfig struct {
	// Provider selects the backing client: "openai" (default, also used for
	// any OpenAI-compatible self-hosted endpoint) or "anthropic".
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	// SummaryModel, if set, is used for history summarization instead of Model.
	SummaryModel string
	OpenAI       OpenAIConfig
	Anthropic    AnthropicConfig
}

// OpenAIConfig configures the openai-go client used for the "openai"
// provider and for any OpenAI-compatible self-hosted endpoint.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// API selects "completions" (default) or "responses".
	API         string
	ExtraParams map[string]any
	LogPayloads bool
}

// AnthropicConfig configures the anthropic-sdk-go client used for the
// "anthropic" provider.
type AnthropicConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	ExtraParams map[string]any
	PromptCache AnthropicPromptCacheConfig
}

// AnthropicPromptCacheConfig controls which message segments get
// cache_control breakpoints on the Anthropic Messages API.
type AnthropicPromptCacheConfig struct {
	Enabled       bool
	CacheSystem   bool
	CacheTools    bool
	CacheMessages bool
}

// EmbeddingConfig configures the embedding client used by the retrieval
// fabric and memory store.
type EmbeddingConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// VectorStoreConfig configures the vector index consumed (never hosted) by
// the retrieval fabric.
type VectorStoreConfig struct {
	// Dir is the filesystem directory holding the per-KB vector index when
	// backed by an embedded/local store. Empty when using a remote service.
	Dir string
	// DSN, when set, addresses a remote vector service (e.g. Qdrant).
	DSN        string
	Collection string
	Dimensions int
}

// KeywordIndexConfig configures the keyword/full-text index host.
type KeywordIndexConfig struct {
	Host string
}

// GraphIndexConfig configures the graph index service URL.
type GraphIndexConfig struct {
	URL string
}

// WebSearchConfig configures the outbound web_search tool. Endpoints is a
// CSV of search endpoint base URLs, tried in order.
type WebSearchConfig struct {
	Endpoints []string
}

// RelationalConfig configures the relational store backing KB, Document,
// Memory, EvalRun, EvalResult, ChatSession, and ChatHistory records.
type RelationalConfig struct {
	DSN string
}

// RedisConfig configures the optional retrieval-result cache. Disabled by
// default; when Enabled is false every component that would otherwise use
// it falls back to an in-process no-op.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// TracingConfig mirrors observability.TracingConfig without importing it,
// keeping internal/config free of a dependency on internal/observability.
type TracingConfig struct {
	Enabled      bool
	OTLPEndpoint string
	Insecure     bool
}

// Timeouts collects every configurable suspension-point timeout named in
// the concurrency and resource model. All are overridable; these are the
// defaults applied when a field is zero.
type Timeouts struct {
	Tool          time.Duration
	WebSearchTool time.Duration
	FetchTool     time.Duration
	RetryStep     time.Duration
	GraphSearch   time.Duration
	FullEvaluation time.Duration
}

// DefaultTimeouts returns the defaults from the concurrency and resource
// model: 10s per tool (8s web search, 10s fetch), 30s per retry step, 60s
// for graph search degrade, 180s for a full question evaluation.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Tool:           10 * time.Second,
		WebSearchTool:  8 * time.Second,
		FetchTool:      10 * time.Second,
		RetryStep:      30 * time.Second,
		GraphSearch:    60 * time.Second,
		FullEvaluation: 180 * time.Second,
	}
}

// RuntimeConfig aggregates every sub-config a component may need. It is
// constructed once by Load and threaded explicitly. Outside of Load, only
// internal/llm's ContextSize reads the environment, for its context-window
// overrides.
type RuntimeConfig struct {
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Vector    VectorStoreConfig
	Keyword   KeywordIndexConfig
	Graph     GraphIndexConfig
	WebSearch WebSearchConfig
	Relational RelationalConfig
	Redis     RedisConfig
	Tracing   TracingConfig

	// DefaultTimezone is used by the get_current_datetime tool and any
	// timestamp formatting that has no more specific zone available.
	DefaultTimezone string

	// ChunkSizeHint and ChunkOverlapHint are passed through to document
	// ingestion (out of scope for this module) but recorded here since the
	// retrieval fabric's snippet windows are sized consistently with them.
	ChunkSizeHint    int
	ChunkOverlapHint int

	Timeouts Timeouts

	LogLevel string
	LogPath  string

	ServiceName    string
	ServiceVersion string
	Environment    string
}
