package analytics

import (
	"fmt"
	"math"
	"testing"
)

func TestHLLEstimateWithinTolerance(t *testing.T) {
	h := newHLL()
	const n = 50_000
	for i := 0; i < n; i++ {
		h.Add(fnv64(fmt.Sprintf("item-%d", i)))
	}
	est := h.Estimate()
	errPct := math.Abs(est-float64(n)) / float64(n)
	if errPct > 0.05 {
		t.Fatalf("HLL estimate %f too far from true cardinality %d (%.2f%% error)", est, n, errPct*100)
	}
}

func TestTDigestQuantilesMonotonic(t *testing.T) {
	td := newTDigest()
	for i := 1; i <= 10_000; i++ {
		td.Add(float64(i))
	}
	p50 := td.Quantile(0.5)
	p90 := td.Quantile(0.9)
	p99 := td.Quantile(0.99)
	if !(p50 < p90 && p90 < p99) {
		t.Fatalf("quantiles not monotonic: p50=%f p90=%f p99=%f", p50, p90, p99)
	}
	if math.Abs(p50-5000) > 500 {
		t.Fatalf("p50 = %f, want close to 5000", p50)
	}
}

func TestPlaneRecordAndQuery(t *testing.T) {
	p := NewPlane()

	base := int64(1_700_000_000_000_000)
	for i := 0; i < 100; i++ {
		p.Record(Event{
			ProjectID:   1,
			AgentID:     uint64(i % 5),
			SessionID:   uint64(i % 3),
			Model:       "gpt",
			TimestampUS: base,
			DurationUS:  uint32(100 + i),
			TokenCount:  10,
			CostMicros:  50,
			IsError:     i%10 == 0,
		})
	}

	agg := p.Query(1, GranularityHour, base-1, base+1, DimensionFilters{})
	if agg.Requests != 100 {
		t.Fatalf("Requests = %d, want 100", agg.Requests)
	}
	if agg.Errors != 10 {
		t.Fatalf("Errors = %d, want 10", agg.Errors)
	}
	if agg.TotalTokens != 1000 {
		t.Fatalf("TotalTokens = %d, want 1000", agg.TotalTokens)
	}
	if agg.UniqueAgents < 3 || agg.UniqueAgents > 7 {
		t.Fatalf("UniqueAgents = %f, want close to 5", agg.UniqueAgents)
	}
}

func TestQueryPrunesNonMatchingBucketsByBloomFilter(t *testing.T) {
	p := NewPlane()
	base := int64(1_700_000_000_000_000)
	p.Record(Event{ProjectID: 2, AgentID: 1, TimestampUS: base, DurationUS: 100})

	missingAgent := uint64(999)
	agg := p.Query(2, GranularityHour, base-1, base+1, DimensionFilters{AgentID: &missingAgent})
	if agg.BucketsMatched != 0 {
		t.Fatalf("expected bloom filter to reject a non-existent agent, matched %d buckets", agg.BucketsMatched)
	}

	presentAgent := uint64(1)
	agg2 := p.Query(2, GranularityHour, base-1, base+1, DimensionFilters{AgentID: &presentAgent})
	if agg2.BucketsMatched != 1 {
		t.Fatalf("expected the present agent to match 1 bucket, got %d", agg2.BucketsMatched)
	}
}
