package eval

import (
	"context"
	"sync"
	"time"

	"github.com/Strob0t/CodeForge/internal/concurrency"
)

// Builder composes a Suite from presets, custom evaluators, and run
// options (spec §4.H).
type Builder struct {
	registry    *Registry
	evaluators  []Evaluator
	parallel    bool
	failFast    bool
	maxInFlight int
}

// defaultMaxInFlight matches spec §5's stated max_concurrent default
// for evaluator dispatch.
const defaultMaxInFlight = 100

// NewBuilder starts a Builder backed by registry for preset lookups.
func NewBuilder(registry *Registry) *Builder {
	return &Builder{registry: registry, maxInFlight: defaultMaxInFlight}
}

// WithPreset appends every evaluator named by preset.
func (b *Builder) WithPreset(preset Preset) *Builder {
	evaluators, err := b.registry.Build(preset.evaluatorIDs())
	if err == nil {
		b.evaluators = append(b.evaluators, evaluators...)
	}
	return b
}

// WithEvaluator appends a single custom evaluator.
func (b *Builder) WithEvaluator(e Evaluator) *Builder {
	b.evaluators = append(b.evaluators, e)
	return b
}

// WithParallel enables concurrent dispatch across evaluators marked
// IsParallelizable.
func (b *Builder) WithParallel(parallel bool) *Builder {
	b.parallel = parallel
	return b
}

// WithFailFast cancels remaining evaluators once one reports Passed =
// false.
func (b *Builder) WithFailFast(failFast bool) *Builder {
	b.failFast = failFast
	return b
}

// WithMaxInFlight bounds concurrent evaluator execution (default 100).
func (b *Builder) WithMaxInFlight(n int) *Builder {
	b.maxInFlight = n
	return b
}

// Build finalizes the Suite.
func (b *Builder) Build() *Suite {
	return &Suite{
		evaluators:  b.evaluators,
		parallel:    b.parallel,
		failFast:    b.failFast,
		maxInFlight: b.maxInFlight,
	}
}

// Suite runs a fixed list of evaluators over one trace.
type Suite struct {
	evaluators  []Evaluator
	parallel    bool
	failFast    bool
	maxInFlight int
}

// SuiteResult aggregates every evaluator's EvalResult (spec §4.H step 3).
type SuiteResult struct {
	Results        []EvalResult
	AllPassed      bool
	TotalCost      float64
	MeanConfidence float64
	TotalDuration  time.Duration
}

// Evaluate runs every evaluator in the suite, preserving input order in
// the result slice regardless of parallel dispatch (spec §4.H).
func (s *Suite) Evaluate(ctx context.Context, trace TraceContext) SuiteResult {
	results := make([]EvalResult, len(s.evaluators))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	run := func(i int) {
		started := time.Now()
		res, err := s.evaluators[i].Evaluate(runCtx, trace)
		if err != nil {
			res = EvalResult{EvaluatorID: s.evaluators[i].ID(), Passed: false, Explanation: err.Error()}
		}
		if res.Duration == 0 {
			res.Duration = time.Since(started)
		}
		results[i] = res
		if s.failFast && !res.Passed {
			cancel()
		}
	}

	if s.parallel {
		pool := concurrency.NewPool(s.maxInFlight)
		var wg sync.WaitGroup
		for i := range s.evaluators {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = pool.Run(runCtx, func() error {
					run(i)
					return nil
				})
			}()
		}
		wg.Wait()
	} else {
		for i := range s.evaluators {
			run(i)
			if runCtx.Err() != nil {
				for j := i + 1; j < len(s.evaluators); j++ {
					results[j] = EvalResult{EvaluatorID: s.evaluators[j].ID(), Passed: false, Explanation: "skipped: fail-fast"}
				}
				break
			}
		}
	}

	return aggregate(results)
}

func aggregate(results []EvalResult) SuiteResult {
	out := SuiteResult{Results: results, AllPassed: true}
	var confidenceSum float64
	for _, r := range results {
		if !r.Passed {
			out.AllPassed = false
		}
		out.TotalCost += r.Cost
		confidenceSum += r.Confidence
		out.TotalDuration += r.Duration
	}
	if len(results) > 0 {
		out.MeanConfidence = confidenceSum / float64(len(results))
	}
	return out
}
