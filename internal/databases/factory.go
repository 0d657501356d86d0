package databases

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ragquery/internal/config"
)

// NewManager constructs database backends from RuntimeConfig. Backend
// selection is driven by which DSNs/hosts are configured: an empty value
// falls back to an in-memory backend, which is what every test and the
// zero-configuration happy path use.
func NewManager(ctx context.Context, cfg config.RuntimeConfig) (Manager, error) {
	var m Manager

	if cfg.Keyword.Host != "" {
		pool, err := newPgPool(ctx, cfg.Keyword.Host)
		if err != nil {
			return Manager{}, fmt.Errorf("connect keyword index: %w", err)
		}
		m.Search = NewPostgresSearch(pool)
	} else {
		m.Search = NewMemorySearch()
	}

	if cfg.Vector.DSN != "" {
		v, err := NewQdrantVector(cfg.Vector.DSN, cfg.Vector.Collection, cfg.Vector.Dimensions, "cosine")
		if err != nil {
			return Manager{}, fmt.Errorf("connect vector store: %w", err)
		}
		m.Vector = v
	} else {
		m.Vector = NewMemoryVector()
	}

	if cfg.Graph.URL != "" {
		pool, err := newPgPool(ctx, cfg.Graph.URL)
		if err != nil {
			return Manager{}, fmt.Errorf("connect graph index: %w", err)
		}
		m.Graph = NewPostgresGraph(pool)
	} else {
		m.Graph = NewMemoryGraph()
	}

	if cfg.Relational.DSN != "" {
		pool, err := newPgPool(ctx, cfg.Relational.DSN)
		if err != nil {
			return Manager{}, fmt.Errorf("connect relational store: %w", err)
		}
		m.Chat = NewPostgresChatStore(pool)
	} else {
		m.Chat = NewMemoryChatStore()
	}

	return m, nil
}

func newPgPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 8
	pcfg.MinConns = 0
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
