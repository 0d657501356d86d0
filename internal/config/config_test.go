package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RAGQUERY_LLM_BASE_URL", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("RAGQUERY_VECTOR_DIMENSIONS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.Model == "" {
		t.Fatal("expected a default LLM model")
	}
	if cfg.Vector.Dimensions != 1536 {
		t.Fatalf("expected default vector dimensions 1536, got %d", cfg.Vector.Dimensions)
	}
	if cfg.Timeouts.Tool.Seconds() != 10 {
		t.Fatalf("expected default tool timeout 10s, got %v", cfg.Timeouts.Tool)
	}
	if cfg.Timeouts.GraphSearch.Seconds() != 60 {
		t.Fatalf("expected default graph search timeout 60s, got %v", cfg.Timeouts.GraphSearch)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RAGQUERY_TOOL_TIMEOUT_SECONDS", "5")
	t.Setenv("RAGQUERY_WEB_SEARCH_ENDPOINTS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Timeouts.Tool.Seconds() != 5 {
		t.Fatalf("expected overridden tool timeout 5s, got %v", cfg.Timeouts.Tool)
	}
	if len(cfg.WebSearch.Endpoints) != 2 {
		t.Fatalf("expected 2 web search endpoints, got %d", len(cfg.WebSearch.Endpoints))
	}
}
