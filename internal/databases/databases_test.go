package databases

import (
	"context"
	"testing"

	"ragquery/internal/config"
)

func TestMemorySearch_IndexAndSearch(t *testing.T) {
	t.Parallel()
	s := NewMemorySearch()
	ctx := context.Background()
	_ = s.Index(ctx, "1", "The quick brown fox jumps over the lazy dog", map[string]string{"type": "doc"})
	_ = s.Index(ctx, "2", "Foxes are swift and quick", nil)
	_ = s.Index(ctx, "3", "Completely unrelated text", nil)
	hits, err := s.Search(ctx, "quick fox", 5)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(hits) == 0 {
		t.Fatalf("expected at least one hit")
	}
	if hits[0].ID != "1" && hits[0].ID != "2" {
		t.Fatalf("unexpected top hit: %#v", hits[0])
	}
}

func TestMemoryVector_UpsertAndQuery(t *testing.T) {
	t.Parallel()
	v := NewMemoryVector()
	ctx := context.Background()
	// 2D vectors for simplicity
	_ = v.Upsert(ctx, "a", []float32{1, 0}, map[string]string{"label": "A"})
	_ = v.Upsert(ctx, "b", []float32{0, 1}, nil)
	_ = v.Upsert(ctx, "c", []float32{1, 1}, nil)
	q := []float32{0.9, 0.1}
	res, err := v.SimilaritySearch(ctx, q, 2, nil)
	if err != nil {
		t.Fatalf("sim search error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res))
	}
	if res[0].ID != "a" {
		t.Fatalf("expected 'a' to be nearest, got %q", res[0].ID)
	}
}

func TestMemoryGraph_Basics(t *testing.T) {
	t.Parallel()
	g := NewMemoryGraph()
	ctx := context.Background()
	_ = g.UpsertNode(ctx, "n1", []string{"User"}, map[string]any{"name": "Alice"})
	_ = g.UpsertNode(ctx, "n2", []string{"User"}, map[string]any{"name": "Bob"})
	_ = g.UpsertEdge(ctx, "n1", "KNOWS", "n2", map[string]any{"since": 2020})
	neigh, err := g.Neighbors(ctx, "n1", "KNOWS")
	if err != nil {
		t.Fatalf("neighbors error: %v", err)
	}
	if len(neigh) != 1 || neigh[0] != "n2" {
		t.Fatalf("unexpected neighbors: %#v", neigh)
	}
	if n, ok := g.GetNode(ctx, "n1"); !ok || n.Props["name"] != "Alice" {
		t.Fatalf("unexpected node: %#v exists=%v", n, ok)
	}
}

func TestFactory_DefaultsToMemoryBackends(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mgr, err := NewManager(ctx, config.RuntimeConfig{})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	if mgr.Search == nil || mgr.Vector == nil || mgr.Graph == nil || mgr.Chat == nil {
		t.Fatalf("expected non-nil in-memory backends by default")
	}
	if err := mgr.Search.Index(ctx, "x", "y", nil); err != nil {
		t.Fatalf("search index: %v", err)
	}
	if _, err := mgr.Search.Search(ctx, "y", 1); err != nil {
		t.Fatalf("search query: %v", err)
	}
	if err := mgr.Vector.Upsert(ctx, "x", []float32{1}, nil); err != nil {
		t.Fatalf("vector upsert: %v", err)
	}
	if _, err := mgr.Vector.SimilaritySearch(ctx, []float32{1}, 1, nil); err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if err := mgr.Graph.UpsertNode(ctx, "n", nil, nil); err != nil {
		t.Fatalf("graph upsert: %v", err)
	}
	if err := mgr.Search.Health(ctx); err != nil {
		t.Fatalf("search health: %v", err)
	}
	if err := mgr.Graph.Health(ctx); err != nil {
		t.Fatalf("graph health: %v", err)
	}
}
