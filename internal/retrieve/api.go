package retrieve

// RetrieveOptions configures a retrieval operation over hybrid backends.
type RetrieveOptions struct {
    // K is the desired total number of results after fusion/reranking.
    K int
    // FtK is the number of FTS candidates to pull pre-fusion.
    FtK int
    // VecK is the number of vector candidates to pull pre-fusion.
    VecK int
    // Alpha controls weighted fusion between FTS and vector scores (0..1).
    Alpha float64
    // UseRRF toggles Reciprocal Rank Fusion for combining candidate lists.
    UseRRF bool
    // RRFK is the standard RRF constant; when 0, a default is used.
    RRFK int
    // IncludeText requests full chunk text to be included in results.
    IncludeText bool
    // IncludeSnippet requests a highlighted snippet to be generated.
    IncludeSnippet bool
    // Diversify penalizes near-duplicates.
    Diversify bool
    // Rerank toggles an optional cross-encoder reranking stage.
    Rerank bool
    // GraphAugment toggles graph-based neighborhood expansion.
    GraphAugment bool
    // Tenant for multi-tenant isolation.
    Tenant string
    // Filter applies ACL and metadata constraints consistently across stores.
    Filter map[string]string
    // MinVectorScore filters vector candidates below this similarity before
    // fusion. Zero means DefaultMinVectorScore is applied by HybridSearch.
    MinVectorScore float64
    // DedupePrefixChars is how many leading characters of a keyword hit's
    // content are used as the fusion key, so keyword hits carrying the same
    // passage under different IDs collapse to one result. Vector hits carry
    // no content and are matched to keyword hits by ID only. Zero means
    // DefaultDedupePrefixChars is applied.
    DedupePrefixChars int
}

// DefaultMinVectorScore is the similarity floor applied to vector candidates
// before fusion. Hard-coded on purpose: this is a fixed contract of the
// retrieval fabric, not a free parameter callers are expected to tune per
// query.
const DefaultMinVectorScore = 0.3

// DefaultDedupePrefixChars is the content-prefix length used as the RRF
// fusion key. Configurable via RetrieveOptions.DedupePrefixChars but
// documented here as the contract default.
const DefaultDedupePrefixChars = 100

// DefaultRRFK is the standard RRF denominator constant.
const DefaultRRFK = 60

// Origin records which index(es) contributed a fused retrieval result.
type Origin string

const (
    OriginVector  Origin = "vector"
    OriginKeyword Origin = "keyword"
    OriginBoth    Origin = "both"
)

// RetrievedItem represents a fused retrieval hit.
type RetrievedItem struct {
    ID       string
    DocID    string
    Score    float64
    Snippet  string
    Text     string
    Origin   Origin
    // Metadata surface; values should be strings for portability.
    Metadata map[string]string
    // Doc carries lightweight document metadata for citations.
    Doc DocumentMeta
    // Explanation contains per-item provenance such as ranks, fusion components, and boosts.
    Explanation map[string]any
}

// RetrieveResponse contains fused and optionally reranked results.
type RetrieveResponse struct {
    Query string
    Items []RetrievedItem
    // Debug optionally carries diagnostics and per-stage scores for evaluation.
    Debug map[string]any
}

// DocumentMeta is a portable subset of document fields for citation.
type DocumentMeta struct {
    Title string `json:"title,omitempty"`
    URL   string `json:"url,omitempty"`
}

