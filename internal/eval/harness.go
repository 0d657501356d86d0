package eval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ragquery/internal/llm"
	"ragquery/internal/observability"
)

// Harness is the Evaluator Harness: it drives the agent over a batch of
// questions and scores each answer with four parallel judges.
type Harness struct {
	LLM     llm.Provider
	Model   string
	Agent   AgentFunc
	Store   Store
	Metrics *Metrics
}

func (h *Harness) store() Store {
	if h.Store != nil {
		return h.Store
	}
	return NewMemoryStore()
}

// Run executes run(kb_id, questions, on_progress): it creates the run in
// state pending, transitions to running, evaluates each question in turn,
// and emits status/progress/complete/error events via onProgress as it
// goes, persisting after every transition so a later Load reconstructs
// exactly where the run stands.
func (h *Harness) Run(ctx context.Context, runID, kbID string, questions []Question, onProgress func(Event)) (*Run, error) {
	now := time.Now()
	run := &Run{
		ID:        runID,
		KBID:      kbID,
		Status:    StatusPending,
		Total:     len(questions),
		CreatedAt: now,
		UpdatedAt: now,
	}
	store := h.store()
	if err := store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("save initial run: %w", err)
	}
	emit(onProgress, "status", run)

	run.Status = StatusRunning
	run.UpdatedAt = time.Now()
	_ = store.Save(ctx, run)
	emit(onProgress, "status", run)

	for _, q := range questions {
		result, err := h.evaluateQuestion(ctx, q)
		if err != nil {
			run.Status = StatusFailed
			run.Err = err.Error()
			run.UpdatedAt = time.Now()
			_ = store.Save(ctx, run)
			h.Metrics.countRun(StatusFailed)
			emit(onProgress, "error", run)
			return run, err
		}
		run.Results = append(run.Results, result)
		run.Completed++
		run.UpdatedAt = time.Now()
		_ = store.Save(ctx, run)
		emit(onProgress, "progress", progressPayload{Run: run, Result: result})
	}

	run.Status = StatusCompleted
	run.UpdatedAt = time.Now()
	_ = store.Save(ctx, run)
	h.Metrics.countRun(StatusCompleted)
	emit(onProgress, "complete", run)
	return run, nil
}

type progressPayload struct {
	Run    *Run   `json:"run"`
	Result Result `json:"result"`
}

func emit(onProgress func(Event), name string, data any) {
	if onProgress != nil {
		onProgress(Event{Name: name, Data: data})
	}
}

// evaluateQuestion runs one question end to end through Agent, then
// dispatches the four judges in parallel; they share no mutable state
// besides their own result slot.
func (h *Harness) evaluateQuestion(ctx context.Context, q Question) (Result, error) {
	outcome, err := h.Agent(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("agent failed on question %q: %w", q.Question, err)
	}

	var (
		wg                                       sync.WaitGroup
		retrieval, faithfulness, quality, toolSc JudgeScore
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		start := time.Now()
		s, err := judgeRetrieval(ctx, h.LLM, h.Model, q.Question, outcome.RetrievedText, outcome.ToolsCalled)
		h.Metrics.observeJudge("retrieval", time.Since(start))
		retrieval = judgeOrZero(s, err, ctx)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		s, err := judgeFaithfulness(ctx, h.LLM, h.Model, outcome.Answer, outcome.RetrievedText, outcome.ToolsCalled)
		h.Metrics.observeJudge("faithfulness", time.Since(start))
		faithfulness = judgeOrZero(s, err, ctx)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		s, err := judgeQuality(ctx, h.LLM, h.Model, q.Question, outcome.Answer)
		h.Metrics.observeJudge("quality", time.Since(start))
		quality = judgeOrZero(s, err, ctx)
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		s, err := judgeTool(ctx, h.LLM, h.Model, q.Question, outcome.ToolsCalled, q.ExpectedTools, q.ExpectedIntent)
		h.Metrics.observeJudge("tool", time.Since(start))
		toolSc = judgeOrZero(s, err, ctx)
	}()
	wg.Wait()

	avg := float64(retrieval.Score+faithfulness.Score+quality.Score) / 3.0
	return Result{
		Question:      q.Question,
		Answer:        outcome.Answer,
		RetrievedText: outcome.RetrievedText,
		ToolsCalled:   outcome.ToolsCalled,
		Retrieval:     retrieval,
		Faithfulness:  faithfulness,
		Quality:       quality,
		Tool:          toolSc,
		Average:       avg,
	}, nil
}

func judgeOrZero(s JudgeScore, err error, ctx context.Context) JudgeScore {
	if err != nil {
		observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("eval_judge_failed")
		return JudgeScore{Score: 0, Reason: "judge call failed: " + err.Error()}
	}
	return s
}
