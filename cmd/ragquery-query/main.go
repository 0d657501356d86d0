// Command ragquery-query answers a single question end to end: intent
// analysis, context assembly, the ReAct agent loop, and the quality
// evaluator's retry gate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"ragquery/internal/adaptive"
	"ragquery/internal/config"
	"ragquery/internal/ctxengine"
	"ragquery/internal/databases"
	"ragquery/internal/intent"
	"ragquery/internal/llm"
	"ragquery/internal/llm/providers"
	"ragquery/internal/memory"
	"ragquery/internal/observability"
	"ragquery/internal/quality"
	"ragquery/internal/rag/cache"
	"ragquery/internal/rag/embedder"
	ragservice "ragquery/internal/rag/service"
	"ragquery/internal/react"
	"ragquery/internal/retrieve"
	"ragquery/internal/tools/canonical"
	"ragquery/internal/validation"
	"ragquery/internal/version"
)

const defaultRunTimeout = 2 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	q := flag.String("q", "", "User question")
	kb := flag.String("kb", "default", "Knowledge base id")
	session := flag.String("session", "cli", "Session id, used to load/append chat history")
	maxSteps := flag.Int("max-steps", 0, "Max ReAct reasoning steps (0 = driver default)")
	showVersion := flag.Bool("version", false, "Print the build version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Version)
		return
	}
	if *q == "" {
		fmt.Fprintln(os.Stderr, "usage: ragquery-query -q \"...\" [-kb id] [-session id]")
		os.Exit(2)
	}

	kbID, err := validation.ProjectID(*kb)
	if err != nil {
		log.Fatal().Err(err).Str("kb", *kb).Msg("invalid kb id")
	}
	sessionID, err := validation.SessionID(*session)
	if err != nil {
		log.Fatal().Err(err).Str("session", *session).Msg("invalid session id")
	}

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	log.Info().Str("kb", kbID).Str("version", version.Version).Msg("ragquery-query starting")

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	if err := run(ctx, cfg, kbID, sessionID, *q, *maxSteps); err != nil {
		log.Fatal().Err(err).Msg("ragquery-query")
	}
}

func run(ctx context.Context, cfg config.RuntimeConfig, kbID, sessionID, question string, maxSteps int) error {
	httpClient := observability.NewHTTPClient(nil)

	llmProvider, err := providers.Build(cfg.LLM, httpClient)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	mgr, err := databases.NewManager(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init databases: %w", err)
	}
	defer mgr.Close()

	deps := retrieve.Deps{Search: mgr.Search, Vector: mgr.Vector, Graph: mgr.Graph, Rerank: retrieve.NoopReranker{}}

	var emb embedder.Embedder
	if cfg.Embedding.BaseURL != "" {
		emb = embedder.NewClient(cfg.Embedding, cfg.Vector.Dimensions)
	}
	retrieveCache, err := cache.New(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("retrieval cache unavailable, continuing without it")
		retrieveCache = cache.Noop{}
	}
	ragSvc := ragservice.New(mgr, ragservice.WithEmbedder(emb), ragservice.WithCache(retrieveCache))

	analyzer := intent.NewAnalyzer(llmProvider, cfg.LLM.Model)
	memStore := memory.NewStore(mgr.Vector)
	memSvc := memory.NewService(memStore, memory.Config{LLM: llmProvider, Model: cfg.LLM.Model, EmbedCfg: cfg.Embedding})

	tz, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		tz = time.UTC
	}

	history, err := mgr.Chat.RecentTurns(ctx, sessionID, 12)
	if err != nil {
		log.Warn().Err(err).Msg("load chat history")
	}

	engine := &ctxengine.Engine{
		Memory:    memSvc,
		Retriever: ragSvc,
		LLM:       llmProvider,
		Model:     cfg.LLM.Model,
		Analyzer:  analyzer,
		RetrieveOptions: retrieve.RetrieveOptions{
			K: 8, FtK: 20, VecK: 20, UseRRF: true, IncludeText: true, IncludeSnippet: true,
		},
	}

	in, err := analyzer.Analyze(ctx, question, historyToTurns(history))
	if err != nil {
		log.Warn().Err(err).Msg("intent analysis failed, proceeding without it")
	}

	baseReq := ctxengine.Request{
		KBID:        kbID,
		SessionID:   sessionID,
		Query:       question,
		ChatHistory: history,
		Intent:      &in,
		MaxTokens:   4000,
	}

	built, err := engine.BuildContext(ctx, baseReq)
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}

	if intent.ShouldSkipAgent(in) {
		resp, err := llmProvider.Chat(ctx, directReplyMessages(question), nil, cfg.LLM.Model)
		if err != nil {
			return fmt.Errorf("direct reply: %w", err)
		}
		fmt.Println(resp.Content)
		return appendTurns(ctx, mgr.Chat, sessionID, question, resp.Content, string(in.Intent))
	}

	tc := canonical.NewToolContext(kbID, deps, cfg.Embedding, llmProvider, cfg.LLM.Model, tz)
	registry := canonical.BuildRegistry(tc, firstOrEmpty(cfg.WebSearch.Endpoints))

	rebuildReq := baseReq
	rebuildReq.Intent = &in
	adaptiveMgr := adaptive.NewManager(kbID, sessionID, built.ContextString, &in, adaptive.Thresholds{},
		func(ctx context.Context, _ *adaptive.State) (string, error) {
			r, err := engine.BuildContext(ctx, rebuildReq)
			if err != nil {
				return "", err
			}
			return r.ContextString, nil
		})

	driver := &react.Driver{
		LLM:        llmProvider,
		Model:      cfg.LLM.Model,
		Tools:      registry,
		MaxSteps:   maxSteps,
		Adaptive:   adaptiveMgr,
		IsFollowUp: len(history) > 0,
	}

	enriched := react.BuildEnrichedMessage(built.ContextString, &in, question)
	result, err := driver.Chat(ctx, enriched)
	if err != nil {
		return fmt.Errorf("agent loop: %w", err)
	}

	controller := &quality.Controller{LLM: llmProvider, Model: cfg.LLM.Model, RetryTimeout: cfg.Timeouts.RetryStep}
	retryFunc := func(ctx context.Context, retryMessage string) (string, error) {
		r, err := driver.Chat(ctx, retryMessage)
		if err != nil {
			return "", err
		}
		return r.Answer, nil
	}
	answer, passed, err := controller.Evaluate(ctx, question, result.Answer, &in, built.ContextString, retryFunc)
	if err != nil {
		log.Warn().Err(err).Bool("passed", passed).Msg("quality evaluation did not clear the judge, falling back")
	}

	fmt.Println(answer)
	return appendTurns(ctx, mgr.Chat, sessionID, question, answer, string(in.Intent))
}

// directReplyMessages is used for greeting/small-talk intents, which skip
// the agent loop entirely in favor of a plain conversational reply.
func directReplyMessages(question string) []llm.Message {
	return []llm.Message{
		{Role: "system", Content: "Reply briefly and conversationally."},
		{Role: "user", Content: question},
	}
}

func firstOrEmpty(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}

func historyToTurns(history []databases.ChatRecord) []intent.Turn {
	turns := make([]intent.Turn, 0, len(history))
	for _, h := range history {
		turns = append(turns, intent.Turn{Role: h.Role, Content: h.Content, Intent: intent.Kind(h.Intent)})
	}
	return turns
}

func appendTurns(ctx context.Context, store databases.ChatStore, sessionID, question, answer, in string) error {
	if err := store.AppendTurn(ctx, databases.ChatRecord{SessionID: sessionID, Role: "user", Content: question, Intent: in}); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}
	if err := store.AppendTurn(ctx, databases.ChatRecord{SessionID: sessionID, Role: "assistant", Content: answer, Intent: in}); err != nil {
		return fmt.Errorf("append assistant turn: %w", err)
	}
	return nil
}
