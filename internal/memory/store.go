package memory

import (
	"context"
	"sync"
	"time"

	"ragquery/internal/databases"
)

// Store persists memory records and side-indexes their embeddings into a
// vector store tagged type=memory, so memories co-retrieve with document
// chunks. A single Store instance is safe for concurrent readers; writes to
// a given id are serialized by per-id locking, matching the freshness
// store's atomic-replace requirement for upsert and the lossy-safe
// requirement for touch.
type Store struct {
	vector databases.VectorStore

	mu      sync.RWMutex
	byID    map[string]Record
	byKB    map[string][]string // kb_id -> ordered record ids
	idLocks map[string]*sync.Mutex
}

// NewStore constructs a Store. vector may be nil, in which case memories are
// kept in-process only and never co-retrieved by the vector index.
func NewStore(vector databases.VectorStore) *Store {
	return &Store{
		vector:  vector,
		byID:    make(map[string]Record),
		byKB:    make(map[string][]string),
		idLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.idLocks[id]
	if !ok {
		l = &sync.Mutex{}
		s.idLocks[id] = l
	}
	return l
}

// Upsert persists rec and, if a vector store is configured, side-indexes its
// embedding under metadata type=memory. The per-id lock guarantees a
// concurrent Touch never observes or produces a partially-replaced record.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	idLock := s.lockFor(rec.ID)
	idLock.Lock()
	defer idLock.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.LastAccessedAt.IsZero() {
		rec.LastAccessedAt = rec.CreatedAt
	}

	s.mu.Lock()
	_, existed := s.byID[rec.ID]
	s.byID[rec.ID] = rec
	if !existed {
		s.byKB[rec.KBID] = append(s.byKB[rec.KBID], rec.ID)
	}
	s.mu.Unlock()

	if s.vector != nil && len(rec.Embedding) > 0 {
		md := map[string]string{
			"type":    "memory",
			"kb_id":   rec.KBID,
			"kind":    string(rec.Kind),
			"session": rec.SessionID,
		}
		return s.vector.Upsert(ctx, rec.ID, rec.Embedding, md)
	}
	return nil
}

// Touch increments the access counter and refreshes the last-access
// timestamp. It is lossy-safe: if it races with an Upsert of the same id the
// increment may be dropped, which is an acceptable, explicitly permitted
// loss under the memory store's concurrency contract.
func (s *Store) Touch(_ context.Context, id string) {
	idLock := s.lockFor(id)
	idLock.Lock()
	defer idLock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byID[id]
	if !ok {
		return
	}
	rec.AccessCount++
	rec.LastAccessedAt = time.Now()
	s.byID[id] = rec
}

// List returns a snapshot of every record for a KB, for callers that score
// and filter themselves (Recall).
func (s *Store) List(_ context.Context, kbID string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byKB[kbID]
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := s.byID[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

// Get returns a single record by id.
func (s *Store) Get(_ context.Context, id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}
