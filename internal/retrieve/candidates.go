package retrieve

import (
    "context"
    "fmt"
    "time"

    "ragquery/internal/databases"
)

// SourceDiagnostics carries per-source retrieval timings, counts, and
// failure status. A single source failing is recovered locally: its
// candidates are dropped and FtErr/VecErr record why, but err stays nil
// unless both sources failed.
type SourceDiagnostics struct {
    FtLatency  time.Duration
    VecLatency time.Duration
    FtCount    int
    VecCount   int
    FtErr      error
    VecErr     error
}

// ParallelCandidates queries FTS and vector stores in parallel according to
// the plan. A failure in either source alone is recovered locally by
// dropping that source's signal (diag.FtErr/VecErr records it); only a
// simultaneous failure of both sources surfaces as a non-nil err, and even
// then the caller gets an empty result set rather than having to special
// case it.
func ParallelCandidates(ctx context.Context, search databases.FullTextSearch, vector databases.VectorStore, plan QueryPlan, embVec []float32) (fts []databases.SearchResult, vrs []databases.VectorResult, diag SourceDiagnostics, err error) {
    type ftOut struct {
        res []databases.SearchResult
        dur time.Duration
        err error
    }
    type vecOut struct {
        res []databases.VectorResult
        dur time.Duration
        err error
    }

    ftCh := make(chan ftOut, 1)
    vecCh := make(chan vecOut, 1)

    if plan.FtK > 0 && search != nil {
        go func() {
            t0 := time.Now()
            // Prefer chunk-aware search when available.
            type chunkSearcher interface {
                SearchChunks(ctx context.Context, query string, lang string, limit int, filter map[string]string) ([]databases.SearchResult, error)
            }
            var res []databases.SearchResult
            var e error
            if cs, ok := search.(chunkSearcher); ok {
                res, e = cs.SearchChunks(ctx, plan.Query, plan.Lang, plan.FtK, plan.Filters)
            } else {
                res, e = search.Search(ctx, plan.Query, plan.FtK)
            }
            ftCh <- ftOut{res: res, dur: time.Since(t0), err: e}
        }()
    } else {
        ftCh <- ftOut{}
    }

    if plan.VecK > 0 && vector != nil && len(embVec) > 0 {
        go func() {
            t0 := time.Now()
            res, e := vector.SimilaritySearch(ctx, embVec, plan.VecK, plan.Filters)
            vecCh <- vecOut{res: res, dur: time.Since(t0), err: e}
        }()
    } else {
        vecCh <- vecOut{}
    }

    fto := <-ftCh
    vco := <-vecCh

    diag = SourceDiagnostics{
        FtLatency: fto.dur, VecLatency: vco.dur,
        FtCount: len(fto.res), VecCount: len(vco.res),
        FtErr: fto.err, VecErr: vco.err,
    }
    if fto.err != nil && vco.err != nil {
        return nil, nil, diag, fmt.Errorf("both retrieval sources failed: keyword: %w; vector: %v", fto.err, vco.err)
    }
    if fto.err != nil {
        return nil, vco.res, diag, nil
    }
    if vco.err != nil {
        return fto.res, nil, diag, nil
    }
    return fto.res, vco.res, diag, nil
}

