package retrieve

import (
	"context"
	"testing"

	"ragquery/internal/databases"
)

func TestGenerateSnippets_FallbackBasic(t *testing.T) {
	ctx := context.Background()
	search := databases.NewMemorySearch()
	items := []RetrievedItem{{
		ID:    "chunk:doc:1:0",
		Score: 1.0,
		Text:  "Alpha bravo charlie delta echo foxtrot golf hotel india juliet",
	}}
	out := GenerateSnippets(ctx, search, items, SnippetOptions{Lang: "english", Query: "charlie delta"})
	if out[0].Snippet == "" {
		t.Fatalf("expected non-empty snippet from fallback")
	}
}
