// Package databases defines the external storage interfaces this module
// consumes — vector, keyword (full-text), graph, and relational — plus the
// concrete backends (Qdrant, Postgres, in-memory fakes) that
// implement them. This module never implements the indexes themselves; it
// only speaks their query/health surface.
package databases

import "context"

// SearchResult represents a single hit from the full-text search backend.
type SearchResult struct {
	ID       string
	Score    float64
	Snippet  string
	Text     string
	Metadata map[string]string
}

// FullTextSearch defines the minimum interface for a pluggable keyword/FTS
// backend. Health is polled before a hybrid_search dispatches a keyword
// query, per the retrieval fabric's health-probe requirement.
type FullTextSearch interface {
	Index(ctx context.Context, id string, text string, metadata map[string]string) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Health(ctx context.Context) error
}

// VectorResult represents a single nearest neighbor lookup result. Score is
// a similarity in [0,1]; higher is closer.
type VectorResult struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorStore defines the minimum interface for a pluggable vector store.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)
}

// Node is a minimal in-memory representation of a graph node.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// GraphResult is one hit from a graph-augmented search.
type GraphResult struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// GraphDB defines a portable interface for graph operations. Query performs
// a graph-native search (used by graph_search before degrading to hybrid
// search on failure); Neighbors expands a seed set by relation, used for the
// neighbor-expansion score boost.
type GraphDB interface {
	UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error
	UpsertEdge(ctx context.Context, srcID, rel, dstID string, props map[string]any) error
	Neighbors(ctx context.Context, id string, rel string) ([]string, error)
	GetNode(ctx context.Context, id string) (Node, bool)
	Query(ctx context.Context, query string, limit int) ([]GraphResult, error)
	Health(ctx context.Context) error
}

// ChatRecord is one persisted chat turn, read back to seed context
// assembly and intent continuity.
type ChatRecord struct {
	SessionID string
	Role      string
	Content   string
	Intent    string
}

// ChatStore persists chat sessions/history. This module only reads and
// appends; it never owns session lifecycle (that is the HTTP surface's
// concern, out of scope here).
type ChatStore interface {
	AppendTurn(ctx context.Context, rec ChatRecord) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error)
}

// Manager holds concrete database backends resolved from configuration. A
// single Manager is constructed per process and shared by every
// per-KB/per-query operation; the interfaces themselves document which
// operations must support concurrent readers and which require serialized
// per-KB writes.
type Manager struct {
	Search FullTextSearch
	Vector VectorStore
	Graph  GraphDB
	Chat   ChatStore
}

// Close releases any underlying connection pools. It's a no-op for
// in-memory backends.
func (m Manager) Close() {
	closeIfCloser(m.Search)
	closeIfCloser(m.Vector)
	closeIfCloser(m.Graph)
	closeIfCloser(m.Chat)
}

func closeIfCloser(v any) {
	if c, ok := v.(interface{ Close() }); ok {
		c.Close()
	}
}
