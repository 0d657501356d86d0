package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads RuntimeConfig from environment variables, optionally overlaid
// by a .env file in the working directory. Every field is optional and
// backed by a sane default; a process with no environment configured at all
// still produces a usable RuntimeConfig pointed at local/embedded defaults.
func Load() (RuntimeConfig, error) {
	_ = godotenv.Overload()

	cfg := RuntimeConfig{
		Timeouts:        DefaultTimeouts(),
		DefaultTimezone: firstNonEmpty(os.Getenv("RAGQUERY_DEFAULT_TIMEZONE"), "UTC"),
		ChunkSizeHint:    envInt("RAGQUERY_CHUNK_SIZE_HINT", 800),
		ChunkOverlapHint: envInt("RAGQUERY_CHUNK_OVERLAP_HINT", 120),
		LogLevel:         firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		LogPath:          os.Getenv("LOG_PATH"),
		ServiceName:      firstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), "ragquery"),
		ServiceVersion:   os.Getenv("SERVICE_VERSION"),
		Environment:      firstNonEmpty(os.Getenv("ENVIRONMENT"), "development"),
	}

	provider := strings.ToLower(firstNonEmpty(os.Getenv("RAGQUERY_LLM_PROVIDER"), "openai"))
	baseURL := firstNonEmpty(os.Getenv("RAGQUERY_LLM_BASE_URL"), os.Getenv("OPENAI_BASE_URL"))
	apiKey := firstNonEmpty(os.Getenv("RAGQUERY_LLM_API_KEY"), os.Getenv("OPENAI_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"))
	model := firstNonEmpty(os.Getenv("RAGQUERY_LLM_MODEL"), os.Getenv("OPENAI_MODEL"), "gpt-4o-mini")
	cfg.LLM = LLMConfig{
		Provider:     provider,
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		SummaryModel: os.Getenv("RAGQUERY_LLM_SUMMARY_MODEL"),
		OpenAI: OpenAIConfig{
			BaseURL:     baseURL,
			APIKey:      apiKey,
			Model:       model,
			API:         firstNonEmpty(os.Getenv("RAGQUERY_LLM_API"), "completions"),
			LogPayloads: envBool("RAGQUERY_LLM_LOG_PAYLOADS", false),
		},
		Anthropic: AnthropicConfig{
			BaseURL: baseURL,
			APIKey:  apiKey,
			Model:   model,
			PromptCache: AnthropicPromptCacheConfig{
				Enabled: envBool("RAGQUERY_ANTHROPIC_PROMPT_CACHE", true),
			},
		},
	}
	cfg.Embedding = EmbeddingConfig{
		BaseURL: firstNonEmpty(os.Getenv("RAGQUERY_EMBEDDING_BASE_URL"), cfg.LLM.BaseURL),
		APIKey:  firstNonEmpty(os.Getenv("RAGQUERY_EMBEDDING_API_KEY"), cfg.LLM.APIKey),
		Model:   firstNonEmpty(os.Getenv("RAGQUERY_EMBEDDING_MODEL"), "text-embedding-3-small"),
	}
	cfg.Vector = VectorStoreConfig{
		Dir:        firstNonEmpty(os.Getenv("RAGQUERY_VECTOR_DIR"), "./data/vector"),
		DSN:        os.Getenv("RAGQUERY_VECTOR_DSN"),
		Collection: firstNonEmpty(os.Getenv("RAGQUERY_VECTOR_COLLECTION"), "ragquery"),
		Dimensions: envInt("RAGQUERY_VECTOR_DIMENSIONS", 1536),
	}
	cfg.Keyword = KeywordIndexConfig{Host: os.Getenv("RAGQUERY_KEYWORD_HOST")}
	cfg.Graph = GraphIndexConfig{URL: os.Getenv("RAGQUERY_GRAPH_URL")}
	if v := os.Getenv("RAGQUERY_WEB_SEARCH_ENDPOINTS"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cfg.WebSearch.Endpoints = append(cfg.WebSearch.Endpoints, part)
			}
		}
	}
	cfg.Relational = RelationalConfig{DSN: os.Getenv("RAGQUERY_DATABASE_DSN")}
	cfg.Redis = RedisConfig{
		Enabled:  envBool("RAGQUERY_REDIS_ENABLED", false),
		Addr:     firstNonEmpty(os.Getenv("RAGQUERY_REDIS_ADDR"), "localhost:6379"),
		Password: os.Getenv("RAGQUERY_REDIS_PASSWORD"),
		DB:       envInt("RAGQUERY_REDIS_DB", 0),
		TTL:      envDuration(firstNonEmpty(os.Getenv("RAGQUERY_REDIS_TTL_SECONDS"), "300"), 5*time.Minute),
	}
	cfg.Tracing = TracingConfig{
		Enabled:      envBool("RAGQUERY_TRACING_ENABLED", false),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Insecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
	}

	if v := os.Getenv("RAGQUERY_TOOL_TIMEOUT_SECONDS"); v != "" {
		cfg.Timeouts.Tool = envDuration(v, cfg.Timeouts.Tool)
	}
	if v := os.Getenv("RAGQUERY_WEB_SEARCH_TIMEOUT_SECONDS"); v != "" {
		cfg.Timeouts.WebSearchTool = envDuration(v, cfg.Timeouts.WebSearchTool)
	}
	if v := os.Getenv("RAGQUERY_FETCH_TIMEOUT_SECONDS"); v != "" {
		cfg.Timeouts.FetchTool = envDuration(v, cfg.Timeouts.FetchTool)
	}
	if v := os.Getenv("RAGQUERY_RETRY_STEP_TIMEOUT_SECONDS"); v != "" {
		cfg.Timeouts.RetryStep = envDuration(v, cfg.Timeouts.RetryStep)
	}
	if v := os.Getenv("RAGQUERY_GRAPH_SEARCH_TIMEOUT_SECONDS"); v != "" {
		cfg.Timeouts.GraphSearch = envDuration(v, cfg.Timeouts.GraphSearch)
	}
	if v := os.Getenv("RAGQUERY_FULL_EVALUATION_TIMEOUT_SECONDS"); v != "" {
		cfg.Timeouts.FullEvaluation = envDuration(v, cfg.Timeouts.FullEvaluation)
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(secondsStr string, def time.Duration) time.Duration {
	if n, err := strconv.Atoi(secondsStr); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
