package analytics

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

// Granularity is the time-bucket width used to key the analytics plane.
type Granularity int

const (
	GranularityMinute Granularity = iota
	GranularityHour
	GranularityDay
)

func (g Granularity) widthUS() int64 {
	switch g {
	case GranularityMinute:
		return 60_000_000
	case GranularityHour:
		return 3_600_000_000
	case GranularityDay:
		return 86_400_000_000
	default:
		return 3_600_000_000
	}
}

// BucketStart floors timestampUS to the start of its bucket at g.
func (g Granularity) BucketStart(timestampUS int64) int64 {
	w := g.widthUS()
	return (timestampUS / w) * w
}

// BucketKey identifies one analytics bucket (spec §4.D).
type BucketKey struct {
	ProjectID     uint16
	Granularity   Granularity
	BucketStartUS int64
}

// Event is one recorded observation, derived from an appended edge plus
// any evaluator- or provider-supplied cost/model metadata that does not
// fit the fixed-size edge record.
type Event struct {
	ProjectID   uint16
	AgentID     uint64
	SessionID   uint64
	Model       string
	TimestampUS int64
	DurationUS  uint32
	TokenCount  uint32
	CostMicros  uint64
	IsError     bool
}

// bloomCapacity is the design capacity (distinct dimension-value
// combinations) each bucket's Bloom filter is sized for (spec §4.D:
// "default 1,000 distinct combinations per bucket").
const bloomCapacity = 1000

const bloomFalsePositiveRate = 0.01

// bucket accumulates one (project, granularity, bucket_start) cell. All
// hot-path counters are updated atomically without a lock; only the
// t-digest (its own internal lock) and the Bloom filter (filterMu) take
// short locks.
type bucket struct {
	requests        uint64
	errors          uint64
	totalTokens     uint64
	totalDurationUS uint64
	totalCostMicros uint64
	minDurationUS   uint64
	maxDurationUS   uint64

	agentHLL   *hll
	sessionHLL *hll
	modelHLL   *hll
	duration   *tdigest

	filterMu    sync.RWMutex
	filter      *bloom.BloomFilter
	distinct    uint64 // approximate count of Bloom insertions, for saturation detection
}

func newBucket() *bucket {
	return &bucket{
		minDurationUS: math.MaxUint64,
		agentHLL:      newHLL(),
		sessionHLL:    newHLL(),
		modelHLL:      newHLL(),
		duration:      newTDigest(),
		filter:        bloom.NewWithEstimates(bloomCapacity, bloomFalsePositiveRate),
	}
}

// record applies one event's contribution to the bucket (spec §4.D hot
// write path).
func (b *bucket) record(e Event) {
	atomic.AddUint64(&b.requests, 1)
	if e.IsError {
		atomic.AddUint64(&b.errors, 1)
	}
	atomic.AddUint64(&b.totalTokens, uint64(e.TokenCount))
	atomic.AddUint64(&b.totalDurationUS, uint64(e.DurationUS))
	atomic.AddUint64(&b.totalCostMicros, e.CostMicros)

	casMin(&b.minDurationUS, uint64(e.DurationUS))
	casMax(&b.maxDurationUS, uint64(e.DurationUS))

	b.agentHLL.Add(fnv64(fmt.Sprintf("agent:%d", e.AgentID)))
	b.sessionHLL.Add(fnv64(fmt.Sprintf("session:%d", e.SessionID)))
	if e.Model != "" {
		b.modelHLL.Add(fnv64("model:" + e.Model))
	}
	b.duration.Add(float64(e.DurationUS))

	b.filterMu.Lock()
	b.filter.Add([]byte(fmt.Sprintf("agent:%d", e.AgentID)))
	b.filter.Add([]byte(fmt.Sprintf("session:%d", e.SessionID)))
	if e.Model != "" {
		b.filter.Add([]byte("model:" + e.Model))
	}
	if e.IsError {
		b.filter.Add([]byte("error:true"))
	}
	b.filterMu.Unlock()
	atomic.AddUint64(&b.distinct, 1)
}

// mayMatch reports whether the bucket could contain an edge satisfying
// every set dimension in f. A false result is certain; true still requires
// inspecting the aggregate.
func (b *bucket) mayMatch(f DimensionFilters) bool {
	b.filterMu.RLock()
	defer b.filterMu.RUnlock()
	if f.AgentID != nil && !b.filter.Test([]byte(fmt.Sprintf("agent:%d", *f.AgentID))) {
		return false
	}
	if f.SessionID != nil && !b.filter.Test([]byte(fmt.Sprintf("session:%d", *f.SessionID))) {
		return false
	}
	if f.Model != nil && *f.Model != "" && !b.filter.Test([]byte("model:"+*f.Model)) {
		return false
	}
	if f.ErrorOnly && !b.filter.Test([]byte("error:true")) {
		return false
	}
	return true
}

// saturated reports whether this bucket's distinct-combination count has
// exceeded twice its design capacity, the spec's rebuild trigger.
func (b *bucket) saturated() bool {
	return atomic.LoadUint64(&b.distinct) > 2*bloomCapacity
}

func (b *bucket) rebuildFilter() {
	b.filterMu.Lock()
	b.filter = bloom.NewWithEstimates(bloomCapacity, bloomFalsePositiveRate)
	b.filterMu.Unlock()
	atomic.StoreUint64(&b.distinct, 0)
}

func casMin(addr *uint64, v uint64) {
	for {
		cur := atomic.LoadUint64(addr)
		if v >= cur {
			return
		}
		if atomic.CompareAndSwapUint64(addr, cur, v) {
			return
		}
	}
}

func casMax(addr *uint64, v uint64) {
	for {
		cur := atomic.LoadUint64(addr)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(addr, cur, v) {
			return
		}
	}
}

// DimensionFilters narrows an analytics query to buckets and, within
// them, events matching the given dimension values.
type DimensionFilters struct {
	AgentID   *uint64
	SessionID *uint64
	Model     *string
	ErrorOnly bool
}

func (f DimensionFilters) hasAny() bool {
	return f.AgentID != nil || f.SessionID != nil || (f.Model != nil && *f.Model != "") || f.ErrorOnly
}

// fnv64 hashes s with FNV-1a, used to feed the HyperLogLog sketches.
func fnv64(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
