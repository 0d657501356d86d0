package databases

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

type memChatStore struct {
	mu      sync.RWMutex
	history map[string][]ChatRecord
}

// NewMemoryChatStore returns an in-memory ChatStore, used whenever no
// relational DSN is configured and by every test in this module.
func NewMemoryChatStore() ChatStore {
	return &memChatStore{history: make(map[string][]ChatRecord)}
}

func (s *memChatStore) AppendTurn(_ context.Context, rec ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[rec.SessionID] = append(s.history[rec.SessionID], rec)
	return nil
}

func (s *memChatStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]ChatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.history[sessionID]
	if limit <= 0 || limit >= len(all) {
		out := make([]ChatRecord, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]ChatRecord, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

type pgChatStore struct{ pool *pgxpool.Pool }

// NewPostgresChatStore returns a Postgres-backed ChatStore, bootstrapping
// its table on first use the same way the other Postgres backends do.
func NewPostgresChatStore(pool *pgxpool.Pool) ChatStore {
	ctx := context.Background()
	_, _ = pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS chat_history (
  id BIGSERIAL PRIMARY KEY,
  session_id TEXT NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  intent TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`)
	_, _ = pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS chat_history_session_idx ON chat_history(session_id, created_at)`)
	return &pgChatStore{pool: pool}
}

func (s *pgChatStore) AppendTurn(ctx context.Context, rec ChatRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO chat_history(session_id, role, content, intent) VALUES($1,$2,$3,$4)
`, rec.SessionID, rec.Role, rec.Content, rec.Intent)
	return err
}

func (s *pgChatStore) RecentTurns(ctx context.Context, sessionID string, limit int) ([]ChatRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
SELECT role, content, intent FROM (
  SELECT role, content, intent, created_at FROM chat_history
  WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2
) sub ORDER BY created_at ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ChatRecord, 0, limit)
	for rows.Next() {
		var r ChatRecord
		r.SessionID = sessionID
		if err := rows.Scan(&r.Role, &r.Content, &r.Intent); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *pgChatStore) Close() { s.pool.Close() }
