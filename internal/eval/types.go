// Package eval implements the Evaluator Harness: it drives the full query
// pipeline end to end for a batch of questions, scores each answer with
// four parallel LLM judges, and streams progress as named Server-Sent
// Events so a client can watch (or reconnect to) a long-running run.
// Grounded on the teacher's rag/service stage-timing/metrics pattern for
// the per-run Prometheus instrumentation and on databases/chat_store.go's
// mem/Postgres dual-backend shape for persisting run state.
package eval

import (
	"context"
	"time"
)

// RunStatus is an EvalRun's lifecycle state.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Question is one evaluation item: the question to ask the agent plus the
// ground truth the Tool judge checks the agent's behavior against.
type Question struct {
	Question       string
	ExpectedTools  []string
	ExpectedIntent string
}

// JudgeScore is one judge's verdict: a 0-5 score and its reason.
type JudgeScore struct {
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// Result is one question's full evaluation record.
type Result struct {
	Question      string     `json:"question"`
	Answer        string     `json:"answer"`
	RetrievedText string     `json:"retrievedText"`
	ToolsCalled   []string   `json:"toolsCalled"`
	Retrieval     JudgeScore `json:"retrieval"`
	Faithfulness  JudgeScore `json:"faithfulness"`
	Quality       JudgeScore `json:"quality"`
	Tool          JudgeScore `json:"tool"`
	// Average is (retrieval + faithfulness + quality) / 3; Tool is reported
	// separately and excluded from the average per the contract.
	Average float64 `json:"average"`
}

// Run is the persisted state of one evaluation run, reconstructable after
// a client disconnects and reconnects.
type Run struct {
	ID        string    `json:"id"`
	KBID      string    `json:"kbId"`
	Status    RunStatus `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Results   []Result  `json:"results"`
	Err       string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AgentOutcome is what the harness needs back from one end-to-end agent
// invocation to score it: the final answer, the text that was retrieved
// along the way (for the Retrieval/Faithfulness judges), and the names of
// every tool the agent actually called (for the Tool judge and the
// web/datetime scoring shortcuts).
type AgentOutcome struct {
	Answer        string
	RetrievedText string
	ToolsCalled   []string
}

// AgentFunc runs one question through the full pipeline end to end. Left
// as a closure rather than a direct dependency on internal/react so the
// harness doesn't need to know how Components D/C/F/G/H are wired
// together for a given deployment.
type AgentFunc func(ctx context.Context, question Question) (AgentOutcome, error)
