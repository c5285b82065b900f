package analytics

import (
	"sort"
	"sync"
)

// tdigestCompression bounds the number of centroids a digest retains after
// compression; higher values trade memory for quantile accuracy.
const tdigestCompression = 100

// tdigestMaxUnmerged is how many raw (x, weight) observations accumulate
// before a compression pass runs.
const tdigestMaxUnmerged = 2000

type centroid struct {
	mean   float64
	weight float64
}

// tdigest is a simplified t-digest (Dunning): it buffers raw observations
// as singleton centroids and periodically compresses by merging adjacent
// centroids so no merged centroid carries more than 1/compression of the
// total weight. This is a uniform weight-budget approximation of the
// original's k-scale function; it preserves t-digest's core properties
// (sorted centroids, weighted quantile interpolation, higher resolution
// nowhere in particular since durations aren't assumed to cluster at the
// tails) while staying simple enough to hand-verify, which none of the
// example repos needed to do since none carry a t-digest dependency.
type tdigest struct {
	mu          sync.Mutex
	unmerged    []centroid
	merged      []centroid
	totalWeight float64
}

func newTDigest() *tdigest {
	return &tdigest{}
}

// Add records one observation with weight 1.
func (t *tdigest) Add(x float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unmerged = append(t.unmerged, centroid{mean: x, weight: 1})
	t.totalWeight++
	if len(t.unmerged) >= tdigestMaxUnmerged {
		t.compressLocked()
	}
}

func (t *tdigest) compressLocked() {
	all := make([]centroid, 0, len(t.merged)+len(t.unmerged))
	all = append(all, t.merged...)
	all = append(all, t.unmerged...)
	t.unmerged = t.unmerged[:0]

	if len(all) == 0 {
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].mean < all[j].mean })

	budget := t.totalWeight / tdigestCompression
	if budget < 1 {
		budget = 1
	}

	out := make([]centroid, 0, tdigestCompression+1)
	cur := all[0]
	for i := 1; i < len(all); i++ {
		c := all[i]
		if cur.weight+c.weight <= budget {
			merged := cur.mean*cur.weight + c.mean*c.weight
			cur.weight += c.weight
			cur.mean = merged / cur.weight
			continue
		}
		out = append(out, cur)
		cur = c
	}
	out = append(out, cur)
	t.merged = out
}

// Quantile returns the estimated value at quantile q in [0, 1].
func (t *tdigest) Quantile(q float64) float64 {
	t.mu.Lock()
	t.compressLocked()
	merged := t.merged
	total := t.totalWeight
	t.mu.Unlock()

	if len(merged) == 0 || total == 0 {
		return 0
	}
	if q <= 0 {
		return merged[0].mean
	}
	if q >= 1 {
		return merged[len(merged)-1].mean
	}

	target := q * total
	var cum float64
	for i, c := range merged {
		next := cum + c.weight
		if target <= next || i == len(merged)-1 {
			if c.weight <= 1 {
				return c.mean
			}
			// Interpolate linearly within the centroid's weight span.
			frac := (target - cum) / c.weight
			lo := c.mean
			hi := c.mean
			if i+1 < len(merged) {
				hi = merged[i+1].mean
			}
			return lo + frac*(hi-lo)
		}
		cum = next
	}
	return merged[len(merged)-1].mean
}

// Merge folds other's observations into t (used to combine per-bucket
// digests at query time).
func (t *tdigest) Merge(other *tdigest) {
	other.mu.Lock()
	other.compressLocked()
	snapshot := append([]centroid(nil), other.merged...)
	otherWeight := other.totalWeight
	other.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.unmerged = append(t.unmerged, snapshot...)
	t.totalWeight += otherWeight
	t.compressLocked()
}
