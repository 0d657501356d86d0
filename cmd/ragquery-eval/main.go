// Command ragquery-eval drives the evaluator harness over a batch of
// questions, either as a one-shot CLI run (printing a progress event per
// line to stdout) or, with -serve, as a small HTTP server that starts runs
// on demand and streams their progress back over Server-Sent Events.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"ragquery/internal/adaptive"
	"ragquery/internal/config"
	"ragquery/internal/ctxengine"
	"ragquery/internal/databases"
	"ragquery/internal/eval"
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

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	kb := flag.String("kb", "default", "Knowledge base id")
	questionsPath := flag.String("questions", "", "Path to a JSON array of {question, expectedTools, expectedIntent}")
	serve := flag.Bool("serve", false, "Serve an HTTP API that starts runs and streams progress over SSE")
	addr := flag.String("addr", ":8089", "Listen address when -serve is set")
	showVersion := flag.Bool("version", false, "Print the build version and exit")
	flag.Parse()
	if *showVersion {
		fmt.Println(version.Version)
		return
	}

	kbID, err := validation.ProjectID(*kb)
	if err != nil {
		log.Fatal().Err(err).Str("kb", *kb).Msg("invalid kb id")
	}
	*kb = kbID

	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	deps, err := wireDeps(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("wire dependencies")
	}
	defer deps.mgr.Close()

	reg := prometheus.NewRegistry()
	metrics := eval.NewMetrics(reg)
	store, err := evalStore(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init eval store")
	}

	harness := &eval.Harness{LLM: deps.llmProvider, Model: cfg.LLM.Model, Agent: deps.agentFunc(cfg), Store: store, Metrics: metrics}

	if *serve {
		runServer(*addr, harness, reg)
		return
	}

	if *questionsPath == "" {
		fmt.Fprintln(os.Stderr, "usage: ragquery-eval -questions questions.json -kb id [-serve]")
		os.Exit(2)
	}
	questions, err := loadQuestions(*questionsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load questions")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.FullEvaluation*time.Duration(len(questions)+1))
	defer cancel()

	runID := uuid.NewString()
	enc := json.NewEncoder(os.Stdout)
	run, err := harness.Run(ctx, runID, *kb, questions, func(ev eval.Event) {
		_ = enc.Encode(map[string]any{"event": ev.Name, "data": ev.Data})
	})
	if err != nil {
		log.Fatal().Err(err).Msg("evaluation run failed")
	}
	if run.Status != eval.StatusCompleted {
		os.Exit(1)
	}
}

// evalStore opens its own connection pool against the relational DSN
// rather than reusing databases.Manager's, since eval run storage is a
// distinct table the Manager's factory doesn't know about.
func evalStore(ctx context.Context, cfg config.RuntimeConfig) (eval.Store, error) {
	if cfg.Relational.DSN == "" {
		return eval.NewMemoryStore(), nil
	}
	pool, err := pgxpool.New(ctx, cfg.Relational.DSN)
	if err != nil {
		return nil, fmt.Errorf("open eval store pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping eval store pool: %w", err)
	}
	return eval.NewPostgresStore(pool), nil
}

// loadQuestions reads a question set as JSON or, for a .yaml/.yml path, as
// YAML, so a hand-written question set can use block scalars for longer
// expected-answer prose without JSON's escaping.
func loadQuestions(path string) ([]eval.Question, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	var questions []eval.Question
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(b, &questions); err != nil {
			return nil, fmt.Errorf("parse questions file: %w", err)
		}
		return questions, nil
	}
	if err := json.Unmarshal(b, &questions); err != nil {
		return nil, fmt.Errorf("parse questions file: %w", err)
	}
	return questions, nil
}

// runServer exposes POST /kb/{kb}/runs to start a run and GET /runs/{id}/stream
// to follow its progress over SSE. A disconnected client can re-fetch
// GET /runs/{id} to reconstruct the run's state from the persisted store.
func runServer(addr string, h *eval.Harness, reg *prometheus.Registry) {
	bus := newEventBus()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /kb/{kb}/runs", func(w http.ResponseWriter, r *http.Request) {
		kb, err := validation.ProjectID(r.PathValue("kb"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var body struct {
			Questions []eval.Question `json:"questions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		runID := uuid.NewString()
		go func() {
			ctx := context.Background()
			_, err := h.Run(ctx, runID, kb, body.Questions, func(ev eval.Event) { bus.publish(runID, ev) })
			if err != nil {
				log.Warn().Err(err).Str("run", runID).Msg("eval run failed")
			}
		}()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"runId": runID})
	})

	mux.HandleFunc("GET /runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := h.Store.Load(r.Context(), r.PathValue("id"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(run)
	})

	mux.HandleFunc("GET /runs/{id}/stream", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		if run, err := h.Store.Load(r.Context(), id); err == nil {
			_ = eval.WriteSSE(w, eval.Event{Name: "status", Data: run})
		}

		sub := bus.subscribe(id)
		defer bus.unsubscribe(id, sub)
		for {
			select {
			case <-r.Context().Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := eval.WriteSSE(w, ev); err != nil {
					return
				}
				if ev.Name == "complete" || ev.Name == "error" {
					return
				}
			}
		}
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log.Info().Str("addr", addr).Msg("ragquery-eval serving")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
}

// eventBus fans a run's progress events out to however many stream
// subscribers are currently attached to it (usually zero or one).
type eventBus struct {
	mu   sync.Mutex
	subs map[string][]chan eval.Event
}

func newEventBus() *eventBus { return &eventBus{subs: make(map[string][]chan eval.Event)} }

func (b *eventBus) subscribe(runID string) chan eval.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan eval.Event, 16)
	b.subs[runID] = append(b.subs[runID], ch)
	return ch
}

func (b *eventBus) unsubscribe(runID string, ch chan eval.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[runID]
	for i, s := range subs {
		if s == ch {
			b.subs[runID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (b *eventBus) publish(runID string, ev eval.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[runID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// wiredDeps holds every constructed dependency the agent closure needs to
// answer one evaluation question end to end.
type wiredDeps struct {
	mgr         databases.Manager
	llmProvider llm.Provider
	engine      *ctxengine.Engine
	analyzer    *intent.Analyzer
	toolsDeps   retrieve.Deps
	tz          *time.Location
}

func wireDeps(ctx context.Context, cfg config.RuntimeConfig) (*wiredDeps, error) {
	httpClient := observability.NewHTTPClient(nil)
	llmProvider, err := providers.Build(cfg.LLM, httpClient)
	if err != nil {
		return nil, fmt.Errorf("build llm provider: %w", err)
	}
	mgr, err := databases.NewManager(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init databases: %w", err)
	}

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

	return &wiredDeps{mgr: mgr, llmProvider: llmProvider, engine: engine, analyzer: analyzer, toolsDeps: deps, tz: tz}, nil
}

// agentFunc closes over the wired dependencies to answer one evaluation
// question through the full D->C->E->F->G->H pipeline, reporting back the
// retrieved-evidence text and the tool call list the harness's judges need.
func (d *wiredDeps) agentFunc(cfg config.RuntimeConfig) eval.AgentFunc {
	return func(ctx context.Context, q eval.Question) (eval.AgentOutcome, error) {
		in, err := d.analyzer.Analyze(ctx, q.Question, nil)
		if err != nil {
			log.Warn().Err(err).Msg("intent analysis failed during evaluation")
		}

		baseReq := ctxengine.Request{KBID: "eval", Query: q.Question, Intent: &in, MaxTokens: 4000}
		built, err := d.engine.BuildContext(ctx, baseReq)
		if err != nil {
			return eval.AgentOutcome{}, fmt.Errorf("build context: %w", err)
		}

		tc := canonical.NewToolContext("eval", d.toolsDeps, cfg.Embedding, d.llmProvider, cfg.LLM.Model, d.tz)
		registry := canonical.BuildRegistry(tc, firstOrEmpty(cfg.WebSearch.Endpoints))

		rebuildReq := baseReq
		rebuildReq.Intent = &in
		adaptiveMgr := adaptive.NewManager("eval", q.Question, built.ContextString, &in, adaptive.Thresholds{},
			func(ctx context.Context, _ *adaptive.State) (string, error) {
				r, err := d.engine.BuildContext(ctx, rebuildReq)
				if err != nil {
					return "", err
				}
				return r.ContextString, nil
			})

		driver := &react.Driver{LLM: d.llmProvider, Model: cfg.LLM.Model, Tools: registry, Adaptive: adaptiveMgr}
		enriched := react.BuildEnrichedMessage(built.ContextString, &in, q.Question)
		result, err := driver.Chat(ctx, enriched)
		if err != nil {
			return eval.AgentOutcome{}, fmt.Errorf("agent loop: %w", err)
		}

		controller := &quality.Controller{LLM: d.llmProvider, Model: cfg.LLM.Model, RetryTimeout: cfg.Timeouts.RetryStep}
		retryFunc := func(ctx context.Context, retryMessage string) (string, error) {
			r, err := driver.Chat(ctx, retryMessage)
			if err != nil {
				return "", err
			}
			return r.Answer, nil
		}
		answer, _, _ := controller.Evaluate(ctx, q.Question, result.Answer, &in, built.ContextString, retryFunc)

		toolNames := make([]string, 0, len(result.ToolCalls))
		for _, tc := range result.ToolCalls {
			toolNames = append(toolNames, tc.Name)
		}
		return eval.AgentOutcome{
			Answer:        answer,
			RetrievedText: retrievedText(built),
			ToolsCalled:   toolNames,
		}, nil
	}
}

func retrievedText(built ctxengine.Result) string {
	var b strings.Builder
	for _, item := range built.RAGResults {
		b.WriteString(item.Snippet)
		b.WriteString("\n")
	}
	return b.String()
}

func firstOrEmpty(xs []string) string {
	if len(xs) == 0 {
		return ""
	}
	return xs[0]
}
