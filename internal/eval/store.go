package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists Run state so a later fetch (or a client that disconnected
// mid-stream) can reconstruct where a run left off. Mirrors
// databases.ChatStore's mem/Postgres dual-backend shape.
type Store interface {
	Save(ctx context.Context, run *Run) error
	Load(ctx context.Context, id string) (*Run, error)
}

type memStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore returns an in-memory Store, used whenever no relational
// DSN is configured and by every test in this package.
func NewMemoryStore() Store {
	return &memStore{runs: make(map[string]*Run)}
}

func (s *memStore) Save(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	cp.Results = append([]Result(nil), run.Results...)
	s.runs[run.ID] = &cp
	return nil
}

func (s *memStore) Load(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("eval run %q not found", id)
	}
	cp := *run
	cp.Results = append([]Result(nil), run.Results...)
	return &cp, nil
}

type pgStore struct{ pool *pgxpool.Pool }

// NewPostgresStore returns a Postgres-backed Store, bootstrapping its
// table on first use the same way the other Postgres backends do. The
// whole Run (including its nested Results) is stored as a single JSONB
// document keyed by id, since a run is always read and written as one
// unit, never queried by its nested fields.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS eval_runs (
  id TEXT PRIMARY KEY,
  kb_id TEXT NOT NULL,
  status TEXT NOT NULL,
  body JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS eval_runs_kb_idx ON eval_runs(kb_id)`)
	return &pgStore{pool: pool}
}

func (s *pgStore) Save(ctx context.Context, run *Run) error {
	body, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO eval_runs(id, kb_id, status, body) VALUES($1,$2,$3,$4)
ON CONFLICT (id) DO UPDATE SET status = $3, body = $4, updated_at = now()
`, run.ID, run.KBID, string(run.Status), body)
	return err
}

func (s *pgStore) Load(ctx context.Context, id string) (*Run, error) {
	var body []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM eval_runs WHERE id = $1`, id).Scan(&body)
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(body, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *pgStore) Close() { s.pool.Close() }
