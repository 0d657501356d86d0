package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"ragquery/internal/config"
	"ragquery/internal/embedding"
	"ragquery/internal/llm"
	"ragquery/internal/observability"

	"github.com/google/uuid"
)

// EmbedFunc is an injectable embedding function, so production code can
// share the real embedding client while tests substitute a stub.
type EmbedFunc func(ctx context.Context, cfg config.EmbeddingConfig, texts []string) ([][]float32, error)

// Service implements the Memory Store contract: extract, upsert, recall,
// touch.
type Service struct {
	store    *Store
	llm      llm.Provider
	model    string
	embedCfg config.EmbeddingConfig
	embedFn  EmbedFunc
	topK     int
}

// Config configures a Service.
type Config struct {
	LLM       llm.Provider
	Model     string
	EmbedCfg  config.EmbeddingConfig
	EmbedFn   EmbedFunc // defaults to embedding.EmbedText
	TopK      int       // default 5
}

// NewService constructs a memory Service over store.
func NewService(store *Store, cfg Config) *Service {
	embedFn := cfg.EmbedFn
	if embedFn == nil {
		embedFn = embedding.EmbedText
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		store:    store,
		llm:      cfg.LLM,
		model:    cfg.Model,
		embedCfg: cfg.EmbedCfg,
		embedFn:  embedFn,
		topK:     topK,
	}
}

var dontKnowRe = regexp.MustCompile(`(?i)\b(i don'?t know|i'?m not sure|no idea|unable to find|cannot find)\b`)
var greetingRe = regexp.MustCompile(`(?i)^\s*(hi|hello|hey|你好|您好|greetings)\b`)

// ShouldExtract is the cheap pre-filter gating the LLM-driven extractor: it
// skips greetings, single-sentence exchanges, and answers that amount to
// "I don't know".
func ShouldExtract(question, answer string) bool {
	q := strings.TrimSpace(question)
	a := strings.TrimSpace(answer)
	if q == "" || a == "" {
		return false
	}
	if greetingRe.MatchString(q) {
		return false
	}
	if dontKnowRe.MatchString(a) {
		return false
	}
	if sentenceCount(q) <= 1 && sentenceCount(a) <= 1 && len(a) < 80 {
		return false
	}
	return true
}

func sentenceCount(s string) int {
	n := strings.Count(s, ".") + strings.Count(s, "!") + strings.Count(s, "?")
	if n == 0 && strings.TrimSpace(s) != "" {
		n = 1
	}
	return n
}

const extractSystemPrompt = `You distill durable facts worth remembering from one question/answer turn.
Return a strict JSON array (possibly empty) of objects: {"content": string, "kind": one of "user-preference", "factual", "event", "general", "importance": number 0..1}.
Only extract statements that would still be useful in a future, unrelated conversation. Do not restate the question. If nothing is worth keeping, return [].`

// Extract asks the LLM to distill zero or more memories from a completed
// turn. Callers are expected to have already checked ShouldExtract.
func (s *Service) Extract(ctx context.Context, question, answer string) ([]ExtractedMemory, error) {
	if s.llm == nil {
		return nil, nil
	}
	msgs := []llm.Message{
		{Role: "system", Content: extractSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Question: %s\nAnswer: %s", question, answer)},
	}
	resp, err := s.llm.Chat(ctx, msgs, nil, s.model)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	raw := strings.TrimSpace(resp.Content)
	raw = stripCodeFence(raw)

	var candidates []ExtractedMemory
	if err := json.Unmarshal([]byte(raw), &candidates); err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("memory_extract_parse_failed")
		return nil, nil
	}

	out := make([]ExtractedMemory, 0, len(candidates))
	for _, c := range candidates {
		c.Content = strings.TrimSpace(c.Content)
		if c.Content == "" {
			continue
		}
		if !validKind(c.Kind) {
			c.Kind = KindGeneral
		}
		if c.Importance <= 0 {
			c.Importance = 0.5
		}
		if c.Importance > 1 {
			c.Importance = 1
		}
		out = append(out, c)
	}
	return out, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Upsert embeds and persists a new or replacement memory record.
func (s *Service) Upsert(ctx context.Context, kbID, sessionID, userID string, mem ExtractedMemory) (Record, error) {
	if !validKind(mem.Kind) {
		mem.Kind = KindGeneral
	}
	vecs, err := s.embedFn(ctx, s.embedCfg, []string{mem.Content})
	if err != nil {
		return Record{}, fmt.Errorf("embed memory: %w", err)
	}
	rec := Record{
		ID:         uuid.New().String(),
		KBID:       kbID,
		SessionID:  sessionID,
		UserID:     userID,
		Content:    mem.Content,
		Kind:       mem.Kind,
		Importance: mem.Importance,
		Embedding:  vecs[0],
		CreatedAt:  time.Now(),
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Recall retrieves the top-k memories for kbID ranked by similarity ×
// freshness and touches every returned record.
func (s *Service) Recall(ctx context.Context, kbID, query string, k int) ([]Scored, error) {
	if k <= 0 {
		k = s.topK
	}
	records := s.store.List(ctx, kbID)
	if len(records) == 0 {
		return nil, nil
	}

	vecs, err := s.embedFn(ctx, s.embedCfg, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qvec := vecs[0]
	now := time.Now()

	scored := make([]Scored, 0, len(records))
	for _, rec := range records {
		sim := cosineSimilarity(qvec, rec.Embedding)
		age := now.Sub(rec.CreatedAt)
		score := FreshnessScore(sim, rec.Importance, age, rec.AccessCount)
		scored = append(scored, Scored{Record: rec, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k < len(scored) {
		scored = scored[:k]
	}

	for _, sc := range scored {
		s.store.Touch(ctx, sc.Record.ID)
	}
	return scored, nil
}

// Touch exposes the store's access-tracking operation directly, used by
// callers that recall memories through another path (e.g. a cached
// context build) but still want the touch contract honored.
func (s *Service) Touch(ctx context.Context, id string) { s.store.Touch(ctx, id) }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
