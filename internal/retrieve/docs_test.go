package retrieve

import (
	"context"
	"testing"

	"ragquery/internal/databases"
)

func TestAttachDocMetadata_LoadsFromItemMetadata(t *testing.T) {
	ctx := context.Background()
	search := databases.NewMemorySearch()

	items := []RetrievedItem{{
		ID: "chunk:doc:test:1:0",
		Metadata: map[string]string{"doc_id": "doc:test:1", "title": "T1", "url": "https://ex"},
	}}
	out := AttachDocMetadata(ctx, search, items)
	if out[0].DocID != "doc:test:1" {
		t.Fatalf("expected DocID derived as doc:test:1, got %s", out[0].DocID)
	}
	if out[0].Doc.Title != "T1" || out[0].Doc.URL != "https://ex" {
		t.Fatalf("expected title/url from item metadata, got %+v", out[0].Doc)
	}
}
