package retrieve

import (
	"context"
	"testing"

	"ragquery/internal/databases"
)

func seedHybridCorpus(t *testing.T) (databases.FullTextSearch, databases.VectorStore) {
	t.Helper()
	ctx := context.Background()
	search := databases.NewMemorySearch()
	vector := databases.NewMemoryVector()

	_ = search.Index(ctx, "chunk:doc:1:0", "alpha section details about rockets", map[string]string{"doc_id": "doc:1"})
	_ = search.Index(ctx, "chunk:doc:1:1", "beta appendix info about rockets", map[string]string{"doc_id": "doc:1"})

	_ = vector.Upsert(ctx, "vec:doc:1:0", []float32{1, 0}, map[string]string{"doc_id": "doc:1"})
	_ = vector.Upsert(ctx, "vec:doc:1:1", []float32{0, 1}, map[string]string{"doc_id": "doc:1"})
	return search, vector
}

func TestHybridSearch_FusesAndTagsOrigin(t *testing.T) {
	ctx := context.Background()
	search, vector := seedHybridCorpus(t)
	deps := Deps{Search: search, Vector: vector}

	resp, err := HybridSearch(ctx, deps, "rockets", []float32{1, 0}, RetrieveOptions{K: 5, Alpha: 0.5})
	if err != nil {
		t.Fatalf("HybridSearch error: %v", err)
	}
	if len(resp.Items) == 0 {
		t.Fatalf("expected fused items")
	}
	for _, it := range resp.Items {
		if it.Origin == "" {
			t.Fatalf("expected origin to be tagged on every item: %+v", it)
		}
	}
}

func TestHybridSearch_MinVectorScoreFiltersLowSimilarity(t *testing.T) {
	ctx := context.Background()
	search, vector := seedHybridCorpus(t)
	deps := Deps{Search: search, Vector: vector}

	// A near-orthogonal query vector scores low against both upserted
	// vectors; with a high MinVectorScore floor the vector source should
	// contribute nothing, though keyword hits still come through.
	resp, err := HybridSearch(ctx, deps, "rockets", []float32{0.01, 0.01}, RetrieveOptions{K: 5, Alpha: 0.5, MinVectorScore: 0.99})
	if err != nil {
		t.Fatalf("HybridSearch error: %v", err)
	}
	for _, it := range resp.Items {
		if it.Origin == OriginVector || it.Origin == OriginBoth {
			t.Fatalf("expected no vector-sourced items past the score floor, got %+v", it)
		}
	}
}

func TestHybridSearch_KeywordIndexUnhealthyIsSkipped(t *testing.T) {
	ctx := context.Background()
	_, vector := seedHybridCorpus(t)
	deps := Deps{Search: failingSearch{err: errTestBoom}, Vector: vector}

	resp, err := HybridSearch(ctx, deps, "rockets", []float32{1, 0}, RetrieveOptions{K: 5, Alpha: 0.5})
	if err != nil {
		t.Fatalf("expected degrade-to-vector-only, got error: %v", err)
	}
	for _, it := range resp.Items {
		if it.Origin == OriginKeyword || it.Origin == OriginBoth {
			t.Fatalf("expected only vector-origin items when keyword index is unhealthy, got %+v", it)
		}
	}
}

func TestGraphSearch_DegradesToHybridWhenGraphUnset(t *testing.T) {
	ctx := context.Background()
	search, vector := seedHybridCorpus(t)
	deps := Deps{Search: search, Vector: vector}

	resp, err := GraphSearch(ctx, deps, "rockets", []float32{1, 0}, RetrieveOptions{K: 5, Alpha: 0.5}, 0)
	if err != nil {
		t.Fatalf("GraphSearch error: %v", err)
	}
	if len(resp.Items) == 0 {
		t.Fatalf("expected fused items from hybrid fallback")
	}
}

func TestGraphSearch_MergesGraphNativeHits(t *testing.T) {
	ctx := context.Background()
	search, vector := seedHybridCorpus(t)
	graph := databases.NewMemoryGraph()
	_ = graph.UpsertNode(ctx, "graphhit:1", []string{"Chunk"}, map[string]any{"text": "rockets launch trajectory"})
	deps := Deps{Search: search, Vector: vector, Graph: graph}

	resp, err := GraphSearch(ctx, deps, "rockets", []float32{1, 0}, RetrieveOptions{K: 5, Alpha: 0.5}, 0)
	if err != nil {
		t.Fatalf("GraphSearch error: %v", err)
	}
	found := false
	for _, it := range resp.Items {
		if it.ID == "graphhit:1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected graph-native hit merged into results, got %+v", resp.Items)
	}
}
