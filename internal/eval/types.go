// Package eval implements the Evaluator Framework (spec §4.H): a
// capability-set evaluator interface, preset bundles, and a builder that
// runs a suite of evaluators over one trace with optional bounded
// parallelism and fail-fast short-circuiting.
package eval

import (
	"context"
	"time"

	"github.com/Strob0t/CodeForge/internal/edge"
)

// EvalTrace is the assembled spans-plus-transcript view of a trace, built
// by the caller from Edge Store records before invoking the suite.
type EvalTrace struct {
	Spans      []edge.Edge
	Transcript string
}

// TraceContext is the input to every evaluator (spec §4.H).
type TraceContext struct {
	TraceID  string
	Edges    []edge.Edge
	Input    *string
	Output   *string
	Context  []string
	Metadata map[string]string
	Trace    *EvalTrace
}

// Assertion is one pass/fail check an evaluator reports alongside its
// aggregate result.
type Assertion struct {
	Name    string
	Passed  bool
	Message string
}

// JudgeVote is one LLM-as-judge ballot an evaluator collected.
type JudgeVote struct {
	Judge      string
	Score      float64
	Rationale  string
}

// EvalResult is the output of one evaluator run (spec §4.H).
type EvalResult struct {
	EvaluatorID   string
	EvaluatorType string
	Metrics       map[string]any
	Passed        bool
	Explanation   string
	Assertions    []Assertion
	JudgeVotes    []JudgeVote
	Confidence    float64
	Cost          float64
	Duration      time.Duration
	Feedback      *string
}

// Metadata describes an evaluator for discovery and cost accounting
// (spec §4.H, and the evaluator cost/latency leaderboard supplemented
// feature).
type Metadata struct {
	Name          string
	Version       string
	Description   string
	CostPerEval   float64
	AvgLatencyMS  float64
	Tags          []string
	Author        string
}

// Evaluator is the capability-set trait every evaluator implements.
type Evaluator interface {
	ID() string
	Evaluate(ctx context.Context, trace TraceContext) (EvalResult, error)
	Metadata() Metadata
	IsParallelizable() bool
}
