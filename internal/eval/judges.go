package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"ragquery/internal/llm"
)

const judgeScorePrompt = `You score an AI assistant's answer from 0 to 5. Respond with strict JSON: {"score": int, "reason": string}. No other text.
%s`

func usedTool(toolsCalled []string, name string) bool {
	return slices.Contains(toolsCalled, name)
}

// webOrDatetimeShortcut implements the scoring shortcut shared by the
// Retrieval and Faithfulness judges: if the agent answered via a live web
// fetch or the current-time tool, the judge is skipped entirely rather
// than asked to assess text it never retrieved from the knowledge base.
func webOrDatetimeShortcut(toolsCalled []string) (JudgeScore, bool) {
	if usedTool(toolsCalled, "web_search") || usedTool(toolsCalled, "fetch_webpage") {
		return JudgeScore{Score: 5, Reason: "answered via web"}, true
	}
	if usedTool(toolsCalled, "get_current_datetime") {
		return JudgeScore{Score: 5, Reason: "answered via datetime"}, true
	}
	return JudgeScore{}, false
}

// judgeRetrieval scores whether the retrieved text actually supports the
// question, with the web/datetime shortcut and a hard 0 when nothing was
// retrieved and no tool ran at all.
func judgeRetrieval(ctx context.Context, llmProvider llm.Provider, model string, question, retrievedText string, toolsCalled []string) (JudgeScore, error) {
	if score, ok := webOrDatetimeShortcut(toolsCalled); ok {
		return score, nil
	}
	if strings.TrimSpace(retrievedText) == "" && len(toolsCalled) == 0 {
		return JudgeScore{Score: 0, Reason: "no retrieval and no tool call"}, nil
	}
	prompt := fmt.Sprintf("Question: %s\n\nRetrieved text:\n%s\n\nTools called: %s\n\nDoes the retrieved text actually support answering this question?",
		question, retrievedText, strings.Join(toolsCalled, ", "))
	return callJudge(ctx, llmProvider, model, prompt)
}

// judgeFaithfulness scores whether the answer is actually grounded in the
// retrieved text, sharing Retrieval's web/datetime shortcut.
func judgeFaithfulness(ctx context.Context, llmProvider llm.Provider, model string, answer, retrievedText string, toolsCalled []string) (JudgeScore, error) {
	if score, ok := webOrDatetimeShortcut(toolsCalled); ok {
		return score, nil
	}
	prompt := fmt.Sprintf("Answer:\n%s\n\nRetrieved text:\n%s\n\nTools called: %s\n\nIs every claim in the answer actually supported by the retrieved text (no fabrication)?",
		answer, retrievedText, strings.Join(toolsCalled, ", "))
	return callJudge(ctx, llmProvider, model, prompt)
}

// judgeQuality scores the answer on correctness, completeness, clarity,
// and relevance to the question, with no shortcuts.
func judgeQuality(ctx context.Context, llmProvider llm.Provider, model string, question, answer string) (JudgeScore, error) {
	prompt := fmt.Sprintf("Question: %s\n\nAnswer:\n%s\n\nScore considering correctness, completeness, clarity, and relevance.", question, answer)
	return callJudge(ctx, llmProvider, model, prompt)
}

// judgeTool scores whether the agent called the tools a question of this
// kind needed, returning a hard 0 when no tool ran but one was expected.
func judgeTool(ctx context.Context, llmProvider llm.Provider, model string, question string, toolsCalled, expectedTools []string, expectedIntent string) (JudgeScore, error) {
	if len(expectedTools) > 0 && len(toolsCalled) == 0 {
		return JudgeScore{Score: 0, Reason: "no tool called when one was needed"}, nil
	}
	prompt := fmt.Sprintf("Question: %s\n\nExpected intent: %s\nExpected tools: %s\nTools actually called: %s\n\nScore how well the agent's tool usage matched what this question needed.",
		question, expectedIntent, strings.Join(expectedTools, ", "), strings.Join(toolsCalled, ", "))
	return callJudge(ctx, llmProvider, model, prompt)
}

func callJudge(ctx context.Context, llmProvider llm.Provider, model, body string) (JudgeScore, error) {
	if llmProvider == nil {
		return JudgeScore{}, fmt.Errorf("no judge LLM configured")
	}
	resp, err := llmProvider.Chat(ctx, []llm.Message{
		{Role: "system", Content: fmt.Sprintf(judgeScorePrompt, "")},
		{Role: "user", Content: body},
	}, nil, model)
	if err != nil {
		return JudgeScore{}, err
	}
	return parseScore(resp.Content)
}

func parseScore(raw string) (JudgeScore, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var s JudgeScore
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return JudgeScore{}, fmt.Errorf("parse judge score: %w", err)
	}
	if s.Score < 0 {
		s.Score = 0
	}
	if s.Score > 5 {
		s.Score = 5
	}
	return s, nil
}
