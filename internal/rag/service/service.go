package service

import (
	"context"
	"time"

	"ragquery/internal/databases"
	"ragquery/internal/rag/cache"
	"ragquery/internal/rag/embedder"
	"ragquery/internal/retrieve"
)

// Service provides the retrieval fabric's query-time operation backed by
// Search, Vector, and Graph. Document ingestion is owned by a separate
// offline pipeline and out of scope here; this Service only ever reads.
type Service struct {
	search databases.FullTextSearch
	vector databases.VectorStore
	graph  databases.GraphDB

	log     Logger
	metrics Metrics
	clock   Clock
	emb     embedder.Embedder
	rerank  retrieve.Reranker
	cache   cache.Cache
}

// New constructs a Service from a databases.Manager and optional observability.
func New(mgr databases.Manager, opts ...Option) *Service {
	s := &Service{
		search:  mgr.Search,
		vector:  mgr.Vector,
		graph:   mgr.Graph,
		log:     defaultLogger{},
		metrics: NoopMetrics{},
		clock:   SystemClock{},
		rerank:  retrieve.NoopReranker{},
		cache:   cache.Noop{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Option configures the Service during construction.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option { return func(s *Service) { s.log = l } }

// WithMetrics sets a custom metrics collector.
func WithMetrics(m Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithClock sets a custom clock implementation.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithEmbedder sets the embedder used to vectorize incoming queries.
func WithEmbedder(e embedder.Embedder) Option { return func(s *Service) { s.emb = e } }

// WithReranker sets a reranker implementation used during retrieval.
func WithReranker(r retrieve.Reranker) Option { return func(s *Service) { s.rerank = r } }

// WithCache sets the retrieval-result cache. Defaults to cache.Noop{}.
func WithCache(c cache.Cache) Option { return func(s *Service) { s.cache = c } }

// Retrieve embeds q (when an embedder and vector store are configured) and
// runs the hybrid retrieval fabric, recording per-stage metrics from the
// response's debug diagnostics. A cache hit skips embedding and search
// entirely.
func (s *Service) Retrieve(ctx context.Context, q string, opt retrieve.RetrieveOptions) (retrieve.RetrieveResponse, error) {
	if resp, ok := s.cache.Get(ctx, q, opt); ok {
		return resp, nil
	}

	start := s.clock.Now()

	var qvec []float32
	if s.vector != nil && s.emb != nil {
		emb, err := s.emb.EmbedBatch(ctx, []string{q})
		if err != nil {
			s.log.Error("query embedding failed", map[string]any{"error": err.Error()})
			return retrieve.RetrieveResponse{}, err
		}
		if len(emb) > 0 {
			qvec = emb[0]
		}
	}

	deps := retrieve.Deps{Search: s.search, Vector: s.vector, Graph: s.graph, Rerank: s.rerank}
	resp, err := retrieve.HybridSearch(ctx, deps, q, qvec, opt)
	if err != nil {
		return resp, err
	}

	s.recordMetrics(resp, opt.Tenant, s.clock.Now().Sub(start))
	s.cache.Set(ctx, q, opt, resp)
	return resp, nil
}

func (s *Service) recordMetrics(resp retrieve.RetrieveResponse, tenant string, total time.Duration) {
	labels := map[string]string{"tenant": tenant}
	for _, it := range resp.Items {
		_ = it
		s.metrics.IncCounter("retrieval_results_total", labels)
	}
	s.metrics.ObserveHistogram("retrieval_stage_ms", float64(total.Milliseconds()), map[string]string{"stage": "total", "tenant": tenant})
	if v, ok := resp.Debug["ft_latency_ms"].(int64); ok {
		s.metrics.ObserveHistogram("retrieval_stage_ms", float64(v), map[string]string{"stage": "fts", "tenant": tenant})
	}
	if v, ok := resp.Debug["vec_latency_ms"].(int64); ok {
		s.metrics.ObserveHistogram("retrieval_stage_ms", float64(v), map[string]string{"stage": "vec", "tenant": tenant})
	}
}

// defaultLogger is a minimal internal logger that drops logs.
type defaultLogger struct{}

func (defaultLogger) Info(string, map[string]any)  {}
func (defaultLogger) Error(string, map[string]any) {}
func (defaultLogger) Debug(string, map[string]any) {}
