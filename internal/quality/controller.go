package quality

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ragquery/internal/intent"
	"ragquery/internal/llm"
	"ragquery/internal/observability"
	"ragquery/internal/react"
)

const maxRetries = 3
const lengthFallbackChars = 100

const judgePrompt = `You judge whether an AI assistant's answer is acceptable. Check:
1. Is the answer on-topic for the question?
2. Does it contain substantive information (not just an acknowledgement or refusal)?
3. If the question asked for a diagram, does the answer contain a Mermaid diagram block?
4. If the answer enumerates a procedure or sequence of steps, is the step order causally consistent?
Respond with strict JSON: {"pass": bool, "reason": string}. No other text.`

// RetryFunc re-invokes the agent with a retry message and returns its raw
// answer text. Left as a closure rather than a direct dependency on
// internal/react's Driver so this package doesn't need to know how the
// agent is wired (tools, registry, context) — only that it can be asked
// again.
type RetryFunc func(ctx context.Context, retryMessage string) (string, error)

// Controller is the Quality Evaluator & Retry Controller.
type Controller struct {
	LLM          llm.Provider
	Model        string
	RetryTimeout time.Duration
	MaxRetries   int
}

func (c *Controller) retryTimeout() time.Duration {
	if c.RetryTimeout > 0 {
		return c.RetryTimeout
	}
	return 30 * time.Second
}

func (c *Controller) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return maxRetries
}

// Evaluate runs the pre-check, judges the answer, and on failure retries
// through retry up to maxRetries times (each bounded by RetryTimeout),
// falling back to length-based acceptance once retries are exhausted. It
// returns the final (possibly normalized or replaced) answer and whether
// it passed judgment or only the length fallback.
func (c *Controller) Evaluate(ctx context.Context, question, answer string, in *intent.Intent, retrievedContext string, retry RetryFunc) (string, bool, error) {
	answer, _ = react.NormalizeMermaid(answer)

	var lastReason string
	for attempt := 0; attempt <= c.maxRetries(); attempt++ {
		verdict, err := c.judge(ctx, question, answer, in)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("quality_judge_failed")
			// A judge failure shouldn't block an otherwise fine answer;
			// treat it as a pass so the controller fails open, not closed.
			verdict = Verdict{Pass: true, Reason: "judge unavailable"}
		}
		answer, _ = react.NormalizeMermaid(answer)
		if verdict.Pass {
			return answer, true, nil
		}
		lastReason = verdict.Reason

		if attempt == c.maxRetries() || retry == nil {
			break
		}
		next, err := c.runRetry(ctx, question, answer, lastReason, retrievedContext, retry)
		if err != nil {
			observability.LoggerWithTrace(ctx).Warn().Err(err).Msg("quality_retry_failed")
			break
		}
		answer = next
	}

	if len(strings.TrimSpace(answer)) >= lengthFallbackChars {
		return answer, false, nil
	}
	return answer, false, fmt.Errorf("answer failed quality judgment after %d retries: %s", c.maxRetries(), lastReason)
}

func (c *Controller) runRetry(ctx context.Context, question, answer, reason, retrievedContext string, retry RetryFunc) (string, error) {
	retryCtx, cancel := context.WithTimeout(ctx, c.retryTimeout())
	defer cancel()

	msg := buildRetryMessage(question, reason, retrievedContext)
	return retry(retryCtx, msg)
}

// buildRetryMessage assembles the retry prompt: the failure reason, the
// original question, and the context already retrieved, with network
// search explicitly forbidden so the retry doesn't burn another round trip
// re-fetching what's already in hand.
func buildRetryMessage(question, reason, retrievedContext string) string {
	var b strings.Builder
	b.WriteString("Your previous answer failed review: " + reason + "\n\n")
	b.WriteString("## Question\n" + question + "\n\n")
	if strings.TrimSpace(retrievedContext) != "" {
		b.WriteString("## Already-Retrieved Context\n" + retrievedContext + "\n\n")
	}
	b.WriteString("Do not call web_search or fetch_webpage; answer using only the context above and your own reasoning.")
	return b.String()
}

func (c *Controller) judge(ctx context.Context, question, answer string, in *intent.Intent) (Verdict, error) {
	if c.LLM == nil {
		return Verdict{Pass: true, Reason: "no judge configured"}, nil
	}
	var intentNote string
	if in != nil {
		intentNote = fmt.Sprintf("\nDetected intent: %s", in.Intent)
	}
	user := fmt.Sprintf("Question: %s%s\n\nAnswer:\n%s", question, intentNote, answer)
	resp, err := c.LLM.Chat(ctx, []llm.Message{
		{Role: "system", Content: judgePrompt},
		{Role: "user", Content: user},
	}, nil, c.Model)
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdict(resp.Content)
}

func parseVerdict(raw string) (Verdict, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}
	return v, nil
}
