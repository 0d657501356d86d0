package retrieve

import (
    "math"
    "sort"
    "strings"

    "ragquery/internal/databases"
)

// fusedCandidate is an internal structure used during fusion.
type fusedCandidate struct {
    ID        string
    DocID     string
    Source    string
    Origin    Origin
    FtRank    int // 1-based; 0 if absent
    VecRank   int // 1-based; 0 if absent
    FtScore   float64
    VecScore  float64
    Fused     float64
    Snippet   string
    Text      string
    Metadata  map[string]string
}

// fusionKey derives the RRF dedupe key for a keyword candidate. Keyword hits
// under different IDs collapse to one fused result when their content
// agrees: the key is the first prefixChars characters of whichever content
// field (text, then snippet) is populated. When a hit carries no content
// (e.g. ID-only lookups in tests), the ID itself is the key so distinct
// candidates never spuriously collide.
func fusionKey(id, text, snippet string, prefixChars int) string {
    content := text
    if content == "" {
        content = snippet
    }
    if content == "" {
        return "id:" + id
    }
    if len(content) > prefixChars {
        content = content[:prefixChars]
    }
    return "content:" + content
}

// FuseRRF performs Reciprocal Rank Fusion over FTS and vector candidates.
// Keyword candidates are keyed by content prefix (see fusionKey). A vector
// candidate carries no content, so it joins the keyword candidate with the
// same ID and otherwise stands alone under its own ID; vector hits are not
// matched to keyword hits with a different ID.
// Weights are derived from options.Alpha: w_ft=Alpha, w_vec=1-Alpha.
// kRRf sets the denominator constant (typical default ~60).
func FuseRRF(fts []databases.SearchResult, vec []databases.VectorResult, opt RetrieveOptions) []fusedCandidate {
    wft := opt.Alpha
    if wft < 0 { wft = 0 }
    if wft > 1 { wft = 1 }
    wvec := 1 - wft
    krrf := opt.RRFK
    if krrf <= 0 { krrf = DefaultRRFK }
    prefixChars := opt.DedupePrefixChars
    if prefixChars <= 0 { prefixChars = DefaultDedupePrefixChars }

    type entry struct {
        key               string
        ftRank, vecRank   int
        ftResult          databases.SearchResult
        vecResult         databases.VectorResult
        hasFt, hasVec     bool
    }
    byKey := make(map[string]*entry)
    order := make([]string, 0, len(fts)+len(vec))
    idKey := make(map[string]string, len(fts))

    for i, r := range fts {
        k := fusionKey(r.ID, r.Text, r.Snippet, prefixChars)
        idKey[r.ID] = k
        e, ok := byKey[k]
        if !ok {
            e = &entry{key: k}
            byKey[k] = e
            order = append(order, k)
        }
        e.ftRank = i + 1
        e.ftResult = r
        e.hasFt = true
    }
    for i, r := range vec {
        k, known := idKey[r.ID]
        if !known {
            k = fusionKey(r.ID, "", "", prefixChars)
        }
        e, ok := byKey[k]
        if !ok {
            e = &entry{key: k}
            byKey[k] = e
            order = append(order, k)
        }
        e.vecRank = i + 1
        e.vecResult = r
        e.hasVec = true
    }

    out := make([]fusedCandidate, 0, len(order))
    for _, k := range order {
        e := byKey[k]
        fContrib, vContrib := 0.0, 0.0
        if e.ftRank > 0 { fContrib = 1.0 / float64(krrf+e.ftRank) }
        if e.vecRank > 0 { vContrib = 1.0 / float64(krrf+e.vecRank) }
        fused := wft*fContrib + wvec*vContrib

        id := e.ftResult.ID
        var snippet, text string
        md := map[string]string{}
        if e.hasFt {
            snippet = e.ftResult.Snippet
            text = e.ftResult.Text
            for k, v := range e.ftResult.Metadata { md[k] = v }
        }
        if e.hasVec {
            if id == "" { id = e.vecResult.ID }
            for k, v := range e.vecResult.Metadata { if _, exists := md[k]; !exists { md[k] = v } }
        }
        docID := deriveDocID(id, md)
        source := md["source"]

        origin := OriginVector
        switch {
        case e.hasFt && e.hasVec:
            origin = OriginBoth
        case e.hasFt:
            origin = OriginKeyword
        }

        out = append(out, fusedCandidate{
            ID: id, DocID: docID, Source: source, Origin: origin,
            FtRank: e.ftRank, VecRank: e.vecRank,
            FtScore: fContrib, VecScore: vContrib,
            Fused: fused,
            Snippet: snippet, Text: text,
            Metadata: md,
        })
    }

    // Sort by fused desc, deterministic tie-breakers
    sort.Slice(out, func(i, j int) bool {
        if out[i].Fused != out[j].Fused {
            return out[i].Fused > out[j].Fused
        }
        // Prefer lower sum of ranks (better across lists)
        sri := safeRankSum(out[i].FtRank, out[i].VecRank)
        srj := safeRankSum(out[j].FtRank, out[j].VecRank)
        if sri != srj { return sri < srj }
        return out[i].ID < out[j].ID
    })
    return out
}

func safeRankSum(a, b int) int {
    if a == 0 { a = 1000000000 }
    if b == 0 { b = 1000000000 }
    // prevent overflow but keep large
    if a > 500000000 { a = 500000000 }
    if b > 500000000 { b = 500000000 }
    return a + b
}

// Diversify re-ranks a fused list to reduce dominance by the same DocID/Source.
// It applies multiplicative penalties as counts increase. When diversify=false,
// the input order is returned.
func Diversify(fused []fusedCandidate, k int, diversify bool) []fusedCandidate {
    if !diversify || k <= 0 || len(fused) <= 1 {
        if k > 0 && k < len(fused) { return fused[:k] }
        return fused
    }
    // Penalty strengths tuned for visible diversification in small K.
    lambdaDoc := 0.75
    lambdaSrc := 0.25
    docCount := map[string]int{}
    srcCount := map[string]int{}
    selected := make([]fusedCandidate, 0, min(k, len(fused)))
    used := make([]bool, len(fused))
    for len(selected) < k {
        bestIdx := -1
        bestAdj := -1.0
        for i, c := range fused {
            if used[i] { continue }
            d := docCount[c.DocID]
            s := srcCount[c.Source]
            denom := 1.0 + lambdaDoc*float64(max(0, d)) + lambdaSrc*float64(max(0, s))
            adj := c.Fused / denom
            if adj > bestAdj || (almostEqual(adj, bestAdj) && c.ID < fused[bestIdx].ID) {
                bestAdj = adj
                bestIdx = i
            }
        }
        if bestIdx == -1 { break }
        pick := fused[bestIdx]
        selected = append(selected, pick)
        used[bestIdx] = true
        docCount[pick.DocID]++
        srcCount[pick.Source]++
        if len(selected) == len(fused) { break }
    }
    return selected
}

// FuseAndDiversify is the exported helper to produce final RetrievedItems.
func FuseAndDiversify(fts []databases.SearchResult, vec []databases.VectorResult, plan QueryPlan, opt RetrieveOptions) []RetrievedItem {
    fused := FuseRRF(fts, vec, opt)
    // Apply diversification if requested and cap to K
    diversified := Diversify(fused, plan.FtK+plan.VecK, opt.Diversify)
    // Convert to RetrievedItem
    items := make([]RetrievedItem, 0, len(diversified))
    for _, c := range diversified {
        items = append(items, RetrievedItem{
            ID: c.ID,
            DocID: c.DocID,
            Score: c.Fused,
            Snippet: c.Snippet,
            Text: c.Text,
            Origin: c.Origin,
            Metadata: c.Metadata,
            Explanation: map[string]any{
                "fused":   c.Fused,
                "ft_rank": c.FtRank,
                "vec_rank": c.VecRank,
                "ft_rrf": c.FtScore,
                "vec_rrf": c.VecScore,
            },
        })
    }
    // Final cap by requested K
    k := opt.K
    if k <= 0 { k = 10 }
    if len(items) > k { items = items[:k] }
    return items
}

func deriveDocID(chunkID string, md map[string]string) string {
    if d := md["doc_id"]; d != "" { return d }
    // best-effort: if chunk:<doc-id>:<i>
    if strings.HasPrefix(chunkID, "chunk:") {
        rest := strings.TrimPrefix(chunkID, "chunk:")
        // remove trailing index by cutting last ':' if present
        if idx := strings.LastIndex(rest, ":"); idx != -1 {
            return rest[:idx]
        }
    }
    // passthrough: maybe the ID is itself a doc id
    return chunkID
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func min(a, b int) int { if a < b { return a } ; return b }
func max(a, b int) int { if a > b { return a } ; return b }

// DeriveDocIDPublic exposes internal doc-id derivation for other packages.
func DeriveDocIDPublic(chunkID string, md map[string]string) string { return deriveDocID(chunkID, md) }

