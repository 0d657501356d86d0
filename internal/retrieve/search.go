package retrieve

import (
	"context"
	"time"

	"ragquery/internal/config"
	"ragquery/internal/databases"
	"ragquery/internal/observability"
)

// Deps bundles the backends a search operation needs. A single Deps value
// is constructed once per process from databases.Manager and reused across
// every query.
type Deps struct {
	Search databases.FullTextSearch
	Vector databases.VectorStore
	Graph  databases.GraphDB
	Rerank Reranker
}

// HybridSearch runs the retrieval fabric's core operation: parallel
// vector+keyword candidate gathering (degrading on single-source failure),
// min-vector-score filtering, content-prefix RRF fusion with origin
// tagging, optional diversification, and snippet generation. A keyword
// index whose Health probe fails is skipped for this call and treated as
// absent rather than as a hard error.
func HybridSearch(ctx context.Context, deps Deps, query string, embVec []float32, opt RetrieveOptions) (RetrieveResponse, error) {
	ctx, span := observability.Tracer("ragquery/retrieve").Start(ctx, "HybridSearch")
	defer span.End()

	plan := BuildQueryPlan(ctx, query, opt)

	search := deps.Search
	if search != nil {
		if err := search.Health(ctx); err != nil {
			search = nil
		}
	}

	fts, vec, diag, err := ParallelCandidates(ctx, search, deps.Vector, plan, embVec)
	if err != nil {
		return RetrieveResponse{Query: query}, err
	}

	minScore := opt.MinVectorScore
	if minScore <= 0 {
		minScore = DefaultMinVectorScore
	}
	vec = filterByMinScore(vec, minScore)

	items := FuseAndDiversify(fts, vec, plan, opt)
	items = AttachDocMetadata(ctx, deps.Search, items)
	items = GenerateSnippets(ctx, deps.Search, items, SnippetOptions{Lang: plan.Lang, Query: plan.Query})

	var assembleErr error
	debug := map[string]any{}
	if opt.GraphAugment || opt.Rerank {
		items, debug, assembleErr = AssembleResults(ctx, deps.Graph, deps.Rerank, plan, opt, items)
	}

	debug["ft_latency_ms"] = diag.FtLatency.Milliseconds()
	debug["vec_latency_ms"] = diag.VecLatency.Milliseconds()
	debug["ft_count"] = diag.FtCount
	debug["vec_count"] = diag.VecCount
	if diag.FtErr != nil {
		debug["ft_error"] = diag.FtErr.Error()
	}
	if diag.VecErr != nil {
		debug["vec_error"] = diag.VecErr.Error()
	}

	return RetrieveResponse{Query: query, Items: items, Debug: debug}, assembleErr
}

// GraphSearch augments HybridSearch with a graph-native query, attempting
// Deps.Graph.Query first. Any graph failure or timeout (bounded by
// timeout, defaulting to config.DefaultTimeouts().GraphSearch) degrades to
// a plain HybridSearch rather than failing the whole query.
func GraphSearch(ctx context.Context, deps Deps, query string, embVec []float32, opt RetrieveOptions, timeout time.Duration) (RetrieveResponse, error) {
	ctx, span := observability.Tracer("ragquery/retrieve").Start(ctx, "GraphSearch")
	defer span.End()

	if timeout <= 0 {
		timeout = config.DefaultTimeouts().GraphSearch
	}
	if deps.Graph == nil {
		return HybridSearch(ctx, deps, query, embVec, opt)
	}

	gctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := deps.Graph.Health(gctx); err != nil {
		return HybridSearch(ctx, deps, query, embVec, opt)
	}

	k := opt.K
	if k <= 0 {
		k = 10
	}
	graphResults, err := deps.Graph.Query(gctx, query, k)
	if err != nil || len(graphResults) == 0 {
		return HybridSearch(ctx, deps, query, embVec, opt)
	}

	resp, err := HybridSearch(ctx, deps, query, embVec, opt)
	if err != nil {
		return resp, err
	}

	existing := make(map[string]bool, len(resp.Items))
	for _, it := range resp.Items {
		existing[it.ID] = true
	}
	for _, gr := range graphResults {
		if existing[gr.ID] {
			continue
		}
		resp.Items = append(resp.Items, RetrievedItem{
			ID:       gr.ID,
			DocID:    deriveDocID(gr.ID, gr.Metadata),
			Score:    gr.Score,
			Origin:   OriginKeyword,
			Metadata: gr.Metadata,
			Explanation: map[string]any{"source": "graph_query"},
		})
	}
	if len(resp.Items) > k {
		resp.Items = resp.Items[:k]
	}
	if resp.Debug == nil {
		resp.Debug = map[string]any{}
	}
	resp.Debug["graph_native_hits"] = len(graphResults)
	return resp, nil
}

func filterByMinScore(vec []databases.VectorResult, minScore float64) []databases.VectorResult {
	if minScore <= 0 {
		return vec
	}
	out := make([]databases.VectorResult, 0, len(vec))
	for _, v := range vec {
		if v.Score >= minScore {
			out = append(out, v)
		}
	}
	return out
}
