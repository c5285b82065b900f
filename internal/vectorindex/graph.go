package vectorindex

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

// Defaults per spec §4.F.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearchFactor = 10
	DefaultMaxCandidates  = 100
	RebuildDeletedFraction = 0.20
)

type node struct {
	id        ulid.ID
	neighbors [][]ulid.ID // neighbors[layer]
}

// Index is an HNSW graph mapping edge ids to embeddings of a fixed
// dimension (spec §4.F).
type Index struct {
	mu sync.RWMutex

	dim            int
	m              int
	efConstruction int
	efSearchFactor int

	rng *rand.Rand

	nodes      map[ulid.ID]*node
	vectors    map[ulid.ID][]float32
	deleted    map[ulid.ID]bool
	entryPoint ulid.ID
	maxLayer   int
}

// Option configures an Index at construction time.
type Option func(*Index)

// WithM overrides the per-node neighbor count (spec §4.F M parameter).
func WithM(m int) Option {
	return func(idx *Index) {
		if m > 0 {
			idx.m = m
		}
	}
}

// WithEfConstruction overrides the candidate list size used while building
// the graph (spec §4.F ef_construction parameter).
func WithEfConstruction(ef int) Option {
	return func(idx *Index) {
		if ef > 0 {
			idx.efConstruction = ef
		}
	}
}

// WithEfSearchFactor overrides the multiplier applied to k when sizing the
// candidate list during Search (spec §4.F ef_search parameter).
func WithEfSearchFactor(factor int) Option {
	return func(idx *Index) {
		if factor > 0 {
			idx.efSearchFactor = factor
		}
	}
}

// New returns an empty index for vectors of dimension dim. seed controls
// the geometric level-assignment distribution, so two indexes built from
// the same insert sequence and seed produce the same graph shape. M and
// ef_construction default to the package constants; pass WithM /
// WithEfConstruction to override them from operator configuration.
func New(dim int, seed int64, opts ...Option) *Index {
	idx := &Index{
		dim:            dim,
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearchFactor: DefaultEfSearchFactor,
		rng:            rand.New(rand.NewSource(seed)), //nolint:gosec // graph topology, not a security boundary
		nodes:          make(map[ulid.ID]*node),
		vectors:        make(map[ulid.ID][]float32),
		deleted:        make(map[ulid.ID]bool),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

func (idx *Index) randomLevel() int {
	// Geometric distribution with parameter ln(M)^-1 (spec §4.F).
	p := 1.0 / math.Log(float64(idx.m))
	level := 0
	for idx.rng.Float64() < p && level < 32 {
		level++
	}
	return level
}

// Contains reports whether id is present and not logically deleted.
func (idx *Index) Contains(id ulid.ID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.nodes[id]
	return ok && !idx.deleted[id]
}

// Vector returns the stored embedding for id, satisfying
// semantic.VectorLookup for exact-vector rerank (spec §4.G step 5). A
// logically deleted id still resolves so in-flight reranks for results
// returned before a concurrent delete remain consistent.
func (idx *Index) Vector(id ulid.ID) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Insert adds id -> vec, failing with domain.ErrDimensionMismatch if
// len(vec) != the index's configured dimension.
func (idx *Index) Insert(id ulid.ID, vec []float32) error {
	if err := validateDimension(vec, idx.dim); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	level := idx.randomLevel()
	n := &node{id: id, neighbors: make([][]ulid.ID, level+1)}

	stored := make([]float32, len(vec))
	copy(stored, vec)
	idx.vectors[id] = stored
	idx.nodes[id] = n
	delete(idx.deleted, id)

	if len(idx.nodes) == 1 {
		idx.entryPoint = id
		idx.maxLayer = level
		return nil
	}

	current := idx.entryPoint
	for lc := idx.maxLayer; lc > level; lc-- {
		current = idx.greedyClosest(vec, current, lc)
	}

	for lc := min(level, idx.maxLayer); lc >= 0; lc-- {
		candidates := idx.searchLayer(vec, current, idx.efConstruction, lc, nil)
		cap := idx.m
		if lc == 0 {
			cap = idx.m * 2
		}
		neighbors := selectNeighbors(candidates, cap)

		n.neighbors[lc] = idsOf(neighbors)
		for _, nb := range neighbors {
			idx.connect(nb.ID, id, lc)
		}
		if len(candidates) > 0 {
			current = candidates[0].ID
		}
	}

	if level > idx.maxLayer {
		idx.maxLayer = level
		idx.entryPoint = id
	}
	return nil
}

// connect adds b to a's neighbor list at layer lc, pruning back to the
// layer's capacity by keeping the closest entries if it overflows.
func (idx *Index) connect(a, b ulid.ID, lc int) {
	na := idx.nodes[a]
	if na == nil || lc >= len(na.neighbors) {
		return
	}
	na.neighbors[lc] = append(na.neighbors[lc], b)

	cap := idx.m
	if lc == 0 {
		cap = idx.m * 2
	}
	if len(na.neighbors[lc]) <= cap {
		return
	}

	va := idx.vectors[a]
	scored := make([]ScoredID, 0, len(na.neighbors[lc]))
	for _, nid := range na.neighbors[lc] {
		scored = append(scored, ScoredID{ID: nid, Distance: cosineDistance(va, idx.vectors[nid])})
	}
	kept := selectNeighbors(scored, cap)
	na.neighbors[lc] = idsOf(kept)
}

// greedyClosest descends one layer from current, moving to the closest
// neighbor until no neighbor improves on the current distance.
func (idx *Index) greedyClosest(query []float32, current ulid.ID, lc int) ulid.ID {
	best := current
	bestDist := cosineDistance(query, idx.vectors[current])
	for {
		improved := false
		n := idx.nodes[best]
		if n == nil || lc >= len(n.neighbors) {
			break
		}
		for _, nb := range n.neighbors[lc] {
			if idx.deleted[nb] {
				continue
			}
			d := cosineDistance(query, idx.vectors[nb])
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
		if !improved {
			break
		}
	}
	return best
}

// searchLayer performs a beam search of width ef starting from entry at
// layer lc, optionally restricted to a candidate set (spec §4.F:
// "search_filtered prunes the candidate set ... before admission to the
// heap"). Results are sorted closest-first.
func (idx *Index) searchLayer(query []float32, entry ulid.ID, ef int, lc int, allow CandidateSet) []ScoredID {
	visited := map[ulid.ID]bool{entry: true}

	entryDist := cosineDistance(query, idx.vectors[entry])
	candidates := &minHeap{{ID: entry, Distance: entryDist}}
	heap.Init(candidates)

	results := &maxHeap{}
	if !idx.deleted[entry] && (allow == nil || allow.Contains(entry)) {
		heap.Push(results, ScoredID{ID: entry, Distance: entryDist})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(ScoredID)
		if results.Len() >= ef {
			worst := (*results)[0]
			if c.Distance > worst.Distance {
				break
			}
		}

		n := idx.nodes[c.ID]
		if n == nil || lc >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[lc] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := cosineDistance(query, idx.vectors[nb])

			if results.Len() < ef {
				heap.Push(candidates, ScoredID{ID: nb, Distance: d})
				if !idx.deleted[nb] && (allow == nil || allow.Contains(nb)) {
					heap.Push(results, ScoredID{ID: nb, Distance: d})
				}
			} else if d < (*results)[0].Distance {
				heap.Push(candidates, ScoredID{ID: nb, Distance: d})
				if !idx.deleted[nb] && (allow == nil || allow.Contains(nb)) {
					heap.Push(results, ScoredID{ID: nb, Distance: d})
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]ScoredID, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// selectNeighbors keeps the cap closest candidates. The spec's full
// heuristic additionally prefers neighbors that break local symmetries;
// this simpler closest-cap selection is the standard HNSW fallback and is
// what every reference implementation defaults to when the heuristic
// flag is off.
func selectNeighbors(candidates []ScoredID, cap int) []ScoredID {
	sorted := make([]ScoredID, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > cap {
		sorted = sorted[:cap]
	}
	return sorted
}

func idsOf(scored []ScoredID) []ulid.ID {
	out := make([]ulid.ID, len(scored))
	for i, s := range scored {
		out[i] = s.ID
	}
	return out
}

// Search returns the k closest ids to vec by cosine distance (spec §4.F).
func (idx *Index) Search(vec []float32, k int) ([]ScoredID, error) {
	return idx.search(vec, k, nil)
}

// SearchFiltered restricts admission to ids in candidates.
func (idx *Index) SearchFiltered(vec []float32, k int, candidates CandidateSet) ([]ScoredID, error) {
	return idx.search(vec, k, candidates)
}

func (idx *Index) search(vec []float32, k int, allow CandidateSet) ([]ScoredID, error) {
	if err := validateDimension(vec, idx.dim); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.nodes) == 0 {
		return nil, nil
	}

	current := idx.entryPoint
	for lc := idx.maxLayer; lc > 0; lc-- {
		current = idx.greedyClosest(vec, current, lc)
	}

	ef := idx.efSearchFactor * k
	if ef < k {
		ef = k
	}
	results := idx.searchLayer(vec, current, ef, 0, allow)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete logically removes id (spec §4.F: "Deletion is logical (mark
// bit)").
func (idx *Index) Delete(id ulid.ID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.nodes[id]; !ok {
		return domain.ErrNotFound
	}
	idx.deleted[id] = true
	return nil
}

// DeletedFraction returns the fraction of nodes currently marked deleted.
func (idx *Index) DeletedFraction() float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if len(idx.nodes) == 0 {
		return 0
	}
	return float64(len(idx.deleted)) / float64(len(idx.nodes))
}

// Rebuild returns a fresh index built from every non-deleted vector with
// the package default parameters, leaving idx unchanged (spec §4.F).
// Nothing calls it automatically: no code compares DeletedFraction with
// RebuildDeletedFraction.
func (idx *Index) Rebuild(seed int64) (*Index, error) {
	idx.mu.RLock()
	type pair struct {
		id  ulid.ID
		vec []float32
	}
	live := make([]pair, 0, len(idx.nodes)-len(idx.deleted))
	for id, vec := range idx.vectors {
		if idx.deleted[id] {
			continue
		}
		live = append(live, pair{id: id, vec: vec})
	}
	dim := idx.dim
	idx.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool { return live[i].id.Less(live[j].id) })

	fresh := New(dim, seed)
	for _, p := range live {
		if err := fresh.Insert(p.id, p.vec); err != nil {
			return nil, fmt.Errorf("vectorindex: rebuild: %w", err)
		}
	}
	return fresh, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
