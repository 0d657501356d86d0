// Package memory implements the query pipeline's memory store: extraction
// of short declarative statements from past turns, freshness-scored recall,
// and access-count tracking.
package memory

import "time"

// Kind is the closed set of memory categories a recalled statement may
// belong to.
type Kind string

const (
	KindUserPreference Kind = "user-preference"
	KindFactual         Kind = "factual"
	KindEvent           Kind = "event"
	KindGeneral         Kind = "general"
)

func validKind(k Kind) bool {
	switch k {
	case KindUserPreference, KindFactual, KindEvent, KindGeneral:
		return true
	default:
		return false
	}
}

// Record is a single persisted memory. Embedding is populated on upsert so
// the memory co-retrieves with document chunks under type=memory.
type Record struct {
	ID             string
	KBID           string
	SessionID      string
	UserID         string
	Content        string
	Kind           Kind
	Importance     float64
	Embedding      []float32
	AccessCount    int
	LastAccessedAt time.Time
	CreatedAt      time.Time
}

// ExtractedMemory is a candidate produced by the extractor, before it has
// been assigned an id or embedded.
type ExtractedMemory struct {
	Content    string `json:"content"`
	Kind       Kind   `json:"kind"`
	Importance float64 `json:"importance"`
}

// Scored pairs a recalled Record with its freshness-weighted score.
type Scored struct {
	Record Record
	Score  float64
}
