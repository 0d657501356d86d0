package memory

import (
	"context"
	"testing"
	"time"

	"ragquery/internal/config"
	"ragquery/internal/llm"
)

type stubLLM struct{ response string }

func (s *stubLLM) Chat(_ context.Context, _ []llm.Message, _ []llm.ToolSchema, _ string) (llm.Message, error) {
	return llm.Message{Role: "assistant", Content: s.response}, nil
}
func (s *stubLLM) ChatStream(context.Context, []llm.Message, []llm.ToolSchema, string, llm.StreamHandler) error {
	return nil
}

func stubEmbed(vecs map[string][]float32) EmbedFunc {
	return func(_ context.Context, _ config.EmbeddingConfig, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, t := range texts {
			if v, ok := vecs[t]; ok {
				out[i] = v
			} else {
				out[i] = []float32{1, 0, 0}
			}
		}
		return out, nil
	}
}

func TestShouldExtract_FiltersGreetingsAndDontKnow(t *testing.T) {
	cases := []struct {
		q, a string
		want bool
	}{
		{"Hello there", "Hi! How can I help?", false},
		{"What is RRF?", "I don't know the answer to that.", false},
		{"hi", "hey", false},
		{"What is the capital of France and why was it chosen as the seat of government?", "Paris has been the capital since the Capetian dynasty established it as the center of royal power in the medieval period.", true},
	}
	for _, c := range cases {
		if got := ShouldExtract(c.q, c.a); got != c.want {
			t.Fatalf("ShouldExtract(%q, %q) = %v, want %v", c.q, c.a, got, c.want)
		}
	}
}

func TestServiceExtract_ParsesJSONArray(t *testing.T) {
	llmStub := &stubLLM{response: `[{"content":"user prefers dark mode","kind":"user-preference","importance":0.7}]`}
	svc := NewService(NewStore(nil), Config{LLM: llmStub, EmbedFn: stubEmbed(nil)})

	out, err := svc.Extract(context.Background(), "q", "a")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(out) != 1 || out[0].Content != "user prefers dark mode" || out[0].Kind != KindUserPreference {
		t.Fatalf("unexpected extraction result: %+v", out)
	}
}

func TestServiceExtract_InvalidKindFallsBackToGeneral(t *testing.T) {
	llmStub := &stubLLM{response: `[{"content":"x","kind":"bogus","importance":2}]`}
	svc := NewService(NewStore(nil), Config{LLM: llmStub, EmbedFn: stubEmbed(nil)})

	out, err := svc.Extract(context.Background(), "q", "a")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out[0].Kind != KindGeneral || out[0].Importance != 1 {
		t.Fatalf("expected kind fallback + importance clamp, got %+v", out[0])
	}
}

func TestServiceUpsertAndRecall_OrdersByFreshnessScore(t *testing.T) {
	vecs := map[string][]float32{
		"close match":   {1, 0, 0},
		"distant match": {0, 1, 0},
		"query":         {1, 0, 0},
	}
	svc := NewService(NewStore(nil), Config{EmbedFn: stubEmbed(vecs)})
	ctx := context.Background()

	closeRec, err := svc.Upsert(ctx, "kb1", "sess", "", ExtractedMemory{Content: "close match", Kind: KindFactual, Importance: 0.9})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := svc.Upsert(ctx, "kb1", "sess", "", ExtractedMemory{Content: "distant match", Kind: KindGeneral, Importance: 0.9}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	scored, err := svc.Recall(ctx, "kb1", "query", 2)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 scored memories, got %d", len(scored))
	}
	if scored[0].Record.ID != closeRec.ID {
		t.Fatalf("expected closer-similarity memory ranked first, got %+v", scored[0])
	}

	rec, ok := svc.store.Get(ctx, closeRec.ID)
	if !ok || rec.AccessCount != 1 {
		t.Fatalf("expected recall to touch the memory exactly once, got %+v ok=%v", rec, ok)
	}
}

func TestStoreTouch_NeverDecreasesLastAccessed(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	rec := Record{ID: "m1", KBID: "kb", Content: "x", CreatedAt: time.Now().Add(-time.Hour)}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	before, _ := store.Get(ctx, "m1")
	store.Touch(ctx, "m1")
	after, _ := store.Get(ctx, "m1")

	if after.AccessCount != before.AccessCount+1 {
		t.Fatalf("expected access count to increase by exactly one, got %d -> %d", before.AccessCount, after.AccessCount)
	}
	if after.LastAccessedAt.Before(before.LastAccessedAt) {
		t.Fatalf("expected last-accessed timestamp to never decrease")
	}
}

func TestStoreUpsert_ReplacesAtomically(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()
	_ = store.Upsert(ctx, Record{ID: "m1", KBID: "kb", Content: "v1", Importance: 0.1})
	_ = store.Upsert(ctx, Record{ID: "m1", KBID: "kb", Content: "v2", Importance: 0.9})

	rec, ok := store.Get(ctx, "m1")
	if !ok || rec.Content != "v2" || rec.Importance != 0.9 {
		t.Fatalf("expected full replacement on upsert, got %+v", rec)
	}
	if len(store.List(ctx, "kb")) != 1 {
		t.Fatalf("expected re-upserting the same id to not duplicate the kb index")
	}
}
