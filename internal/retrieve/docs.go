package retrieve

import (
    "context"

    "ragquery/internal/databases"
)

// AttachDocMetadata fills per-item DocID and DocumentMeta from the metadata
// already carried on each fused candidate (chunk index/vector upserts are
// expected to store title/url alongside doc_id at write time).
func AttachDocMetadata(_ context.Context, _ databases.FullTextSearch, items []RetrievedItem) []RetrievedItem {
    for i := range items {
        items[i].DocID = deriveDocID(items[i].ID, items[i].Metadata)
        if items[i].Metadata != nil {
            if t, ok := items[i].Metadata["title"]; ok { items[i].Doc.Title = t }
            if u, ok := items[i].Metadata["url"]; ok { items[i].Doc.URL = u }
        }
    }
    return items
}

