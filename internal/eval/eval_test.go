package eval

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubEvaluator struct {
	id       string
	passed   bool
	err      error
	delay    time.Duration
	parallel bool
	started  chan struct{}
}

func (s *stubEvaluator) ID() string { return s.id }

func (s *stubEvaluator) Metadata() Metadata { return Metadata{Name: s.id} }

func (s *stubEvaluator) IsParallelizable() bool { return s.parallel }

func (s *stubEvaluator) Evaluate(ctx context.Context, _ TraceContext) (EvalResult, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return EvalResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return EvalResult{}, s.err
	}
	return EvalResult{EvaluatorID: s.id, Passed: s.passed, Confidence: 0.8, Cost: 1}, nil
}

func TestRegistryBuildUnknownID(t *testing.T) {
	r := NewRegistry()
	r.Register("known", func() Evaluator { return &stubEvaluator{id: "known", passed: true} })

	if _, err := r.Build([]string{"known", "missing"}); err == nil {
		t.Fatal("Build with unknown id: expected error, got nil")
	}
}

func TestSuiteEvaluatePreservesOrder(t *testing.T) {
	suite := NewBuilder(NewRegistry()).
		WithEvaluator(&stubEvaluator{id: "a", passed: true}).
		WithEvaluator(&stubEvaluator{id: "b", passed: false}).
		WithEvaluator(&stubEvaluator{id: "c", passed: true}).
		Build()

	result := suite.Evaluate(context.Background(), TraceContext{TraceID: "t1"})

	if len(result.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(result.Results))
	}
	wantIDs := []string{"a", "b", "c"}
	for i, want := range wantIDs {
		if result.Results[i].EvaluatorID != want {
			t.Fatalf("result[%d].EvaluatorID = %q, want %q", i, result.Results[i].EvaluatorID, want)
		}
	}
	if result.AllPassed {
		t.Fatal("AllPassed = true, want false (evaluator b failed)")
	}
}

func TestSuiteEvaluateParallelPreservesOrderAndAggregates(t *testing.T) {
	suite := NewBuilder(NewRegistry()).
		WithEvaluator(&stubEvaluator{id: "slow", passed: true, delay: 20 * time.Millisecond, parallel: true}).
		WithEvaluator(&stubEvaluator{id: "fast", passed: true, parallel: true}).
		WithParallel(true).
		WithMaxInFlight(4).
		Build()

	result := suite.Evaluate(context.Background(), TraceContext{})

	if result.Results[0].EvaluatorID != "slow" || result.Results[1].EvaluatorID != "fast" {
		t.Fatalf("parallel dispatch reordered results: %+v", result.Results)
	}
	if !result.AllPassed {
		t.Fatal("AllPassed = false, want true")
	}
	if result.TotalCost != 2 {
		t.Fatalf("TotalCost = %v, want 2", result.TotalCost)
	}
	if result.MeanConfidence != 0.8 {
		t.Fatalf("MeanConfidence = %v, want 0.8", result.MeanConfidence)
	}
}

func TestSuiteFailFastSkipsRemainingSerial(t *testing.T) {
	suite := NewBuilder(NewRegistry()).
		WithEvaluator(&stubEvaluator{id: "first", passed: false}).
		WithEvaluator(&stubEvaluator{id: "second", passed: true}).
		WithFailFast(true).
		Build()

	result := suite.Evaluate(context.Background(), TraceContext{})

	if result.Results[1].Passed {
		t.Fatal("second evaluator should have been skipped after fail-fast, but reports Passed = true")
	}
}

func TestSuiteEvaluateWrapsEvaluatorError(t *testing.T) {
	suite := NewBuilder(NewRegistry()).
		WithEvaluator(&stubEvaluator{id: "broken", err: errors.New("boom")}).
		Build()

	result := suite.Evaluate(context.Background(), TraceContext{})

	if result.Results[0].Passed {
		t.Fatal("evaluator returning an error should surface as Passed = false")
	}
	if result.AllPassed {
		t.Fatal("AllPassed should be false when an evaluator errors")
	}
}

func TestCustomMetricDirections(t *testing.T) {
	cases := []struct {
		name      string
		direction Direction
		threshold float64
		value     float64
		want      bool
	}{
		{"higher pass", Higher, 0.5, 0.9, true},
		{"higher fail", Higher, 0.5, 0.1, false},
		{"lower pass", Lower, 100, 50, true},
		{"lower fail", Lower, 100, 150, false},
		{"target pass", Target, 1, 1, true},
		{"target fail", Target, 1, 1.1, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewCustomMetric("metric", func(TraceContext) (float64, error) {
				return tc.value, nil
			}, tc.threshold, tc.direction)

			res, err := m.Evaluate(context.Background(), TraceContext{})
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if res.Passed != tc.want {
				t.Fatalf("Passed = %v, want %v", res.Passed, tc.want)
			}
		})
	}
}

func TestCustomMetricPropagatesFnError(t *testing.T) {
	m := NewCustomMetric("broken", func(TraceContext) (float64, error) {
		return 0, errors.New("fn failed")
	}, 0, Higher)

	if _, err := m.Evaluate(context.Background(), TraceContext{}); err == nil {
		t.Fatal("Evaluate: expected error from metric function, got nil")
	}
}

func TestPresetEvaluatorIDsNonEmpty(t *testing.T) {
	presets := []Preset{PresetRAG, PresetAgent, PresetCodeGen, PresetContentGen, PresetMinimal}
	for _, p := range presets {
		if len(p.evaluatorIDs()) == 0 {
			t.Fatalf("preset %d has no evaluator ids", p)
		}
	}
}

