// Package cache implements an optional Redis-backed cache of retrieval
// responses, keyed by knowledge base, query, and retrieval options, so a
// repeated question against an unchanged knowledge base skips the hybrid
// search fan-out entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ragquery/internal/config"
	"ragquery/internal/retrieve"
)

// Cache is the retrieval fabric's optional response cache. opt.Tenant
// scopes entries to a knowledge base.
type Cache interface {
	Get(ctx context.Context, query string, opt retrieve.RetrieveOptions) (retrieve.RetrieveResponse, bool)
	Set(ctx context.Context, query string, opt retrieve.RetrieveOptions, resp retrieve.RetrieveResponse)
}

// Noop satisfies Cache by never storing anything, used when caching is
// disabled so callers need no nil check.
type Noop struct{}

func (Noop) Get(context.Context, string, retrieve.RetrieveOptions) (retrieve.RetrieveResponse, bool) {
	return retrieve.RetrieveResponse{}, false
}
func (Noop) Set(context.Context, string, retrieve.RetrieveOptions, retrieve.RetrieveResponse) {}

// Redis is a Cache backed by a single-node or cluster Redis client.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New connects to Redis and returns a Cache, or Noop{} when cfg.Enabled is
// false. Mirrors the project's Redis-backed cache: single client, JSON
// values, TTL-based eviction rather than explicit invalidation, since
// retrieval responses go stale gracefully and don't need push invalidation.
func New(cfg config.RedisConfig) (Cache, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis cache ping: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (c *Redis) key(query string, opt retrieve.RetrieveOptions) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%+v", query, opt)
	return "ragquery:retrieve:" + hex.EncodeToString(h.Sum(nil))
}

func (c *Redis) Get(ctx context.Context, query string, opt retrieve.RetrieveOptions) (retrieve.RetrieveResponse, bool) {
	raw, err := c.client.Get(ctx, c.key(query, opt)).Bytes()
	if err != nil {
		return retrieve.RetrieveResponse{}, false
	}
	var resp retrieve.RetrieveResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return retrieve.RetrieveResponse{}, false
	}
	return resp, true
}

func (c *Redis) Set(ctx context.Context, query string, opt retrieve.RetrieveOptions, resp retrieve.RetrieveResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, c.key(query, opt), raw, c.ttl).Err()
}
