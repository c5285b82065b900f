// Package analytics implements the Analytics Plane (spec §4.D): lock-free,
// per-(project, granularity, bucket) aggregate counters, cardinality
// sketches, and quantile digests over ingested edges.
package analytics

import (
	"sync"
	"sync/atomic"
)

// Plane holds every bucket ever created, keyed by BucketKey. Buckets are
// created lazily with LoadOrStore so concurrent first-writes to the same
// key never race.
type Plane struct {
	buckets sync.Map // BucketKey -> *bucket
}

// NewPlane returns an empty analytics plane.
func NewPlane() *Plane {
	return &Plane{}
}

// Record applies e to every granularity's bucket for e's project and
// timestamp (spec §4.D hot write path).
func (p *Plane) Record(e Event) {
	for _, g := range []Granularity{GranularityMinute, GranularityHour, GranularityDay} {
		key := BucketKey{ProjectID: e.ProjectID, Granularity: g, BucketStartUS: g.BucketStart(e.TimestampUS)}
		p.getOrCreate(key).record(e)
	}
}

func (p *Plane) getOrCreate(key BucketKey) *bucket {
	if v, ok := p.buckets.Load(key); ok {
		return v.(*bucket)
	}
	b := newBucket()
	actual, _ := p.buckets.LoadOrStore(key, b)
	return actual.(*bucket)
}

// Aggregate is the snapshot result of a Query.
type Aggregate struct {
	Requests        uint64
	Errors          uint64
	TotalTokens     uint64
	TotalDurationUS uint64
	TotalCostMicros uint64
	MinDurationUS   uint64
	MaxDurationUS   uint64
	UniqueAgents    float64
	UniqueSessions  float64
	UniqueModels    float64
	P50DurationUS   float64
	P90DurationUS   float64
	P99DurationUS   float64
	BucketsScanned  int
	BucketsMatched  int
}

// Query aggregates every bucket for project at granularity g whose start
// falls in [lo, hi], pruning by Bloom filter before merging sketches (spec
// §4.D query path). There is no duration-range filter, so buckets are not
// pruned by their min/max duration envelope.
func (p *Plane) Query(project uint16, g Granularity, lo, hi int64, filters DimensionFilters) Aggregate {
	var agg Aggregate
	mergedAgent := newHLL()
	mergedSession := newHLL()
	mergedModel := newHLL()
	mergedDuration := newTDigest()

	start := g.BucketStart(lo)
	width := g.widthUS()

	for ts := start; ts <= hi; ts += width {
		key := BucketKey{ProjectID: project, Granularity: g, BucketStartUS: ts}
		v, ok := p.buckets.Load(key)
		if !ok {
			continue
		}
		agg.BucketsScanned++
		b := v.(*bucket)

		if filters.hasAny() && !b.mayMatch(filters) {
			continue
		}

		agg.BucketsMatched++
		agg.Requests += loadU64(&b.requests)
		agg.Errors += loadU64(&b.errors)
		agg.TotalTokens += loadU64(&b.totalTokens)
		agg.TotalDurationUS += loadU64(&b.totalDurationUS)
		agg.TotalCostMicros += loadU64(&b.totalCostMicros)

		if bmin := loadU64(&b.minDurationUS); agg.MinDurationUS == 0 || bmin < agg.MinDurationUS {
			agg.MinDurationUS = bmin
		}
		if bmax := loadU64(&b.maxDurationUS); bmax > agg.MaxDurationUS {
			agg.MaxDurationUS = bmax
		}

		mergedAgent.Merge(b.agentHLL)
		mergedSession.Merge(b.sessionHLL)
		mergedModel.Merge(b.modelHLL)
		mergedDuration.Merge(b.duration)
	}

	agg.UniqueAgents = mergedAgent.Estimate()
	agg.UniqueSessions = mergedSession.Estimate()
	agg.UniqueModels = mergedModel.Estimate()
	agg.P50DurationUS = mergedDuration.Quantile(0.50)
	agg.P90DurationUS = mergedDuration.Quantile(0.90)
	agg.P99DurationUS = mergedDuration.Quantile(0.99)
	return agg
}

// Rebuild resets the Bloom filter of every bucket, across all projects and
// granularities, whose distinct-combination count has saturated (spec
// §4.D: "Saturation ... triggers a rebuild at the next snapshot"). It runs
// only when called; no scheduler in this repository calls it.
func (p *Plane) Rebuild() int {
	rebuilt := 0
	p.buckets.Range(func(_, v any) bool {
		b := v.(*bucket)
		if b.saturated() {
			b.rebuildFilter()
			rebuilt++
		}
		return true
	})
	return rebuilt
}

func loadU64(addr *uint64) uint64 {
	return atomic.LoadUint64(addr)
}
