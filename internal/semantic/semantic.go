// Package semantic implements the Semantic Search Engine (spec §4.G):
// query normalization, an embedding cache, structural filter candidate
// resolution, vector search, and optional exact rerank.
package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/ulid"
	"github.com/Strob0t/CodeForge/internal/vectorindex"
)

// Query carries a semantic search request (spec §4.G).
type Query struct {
	Text             string
	Limit            int
	MinSimilarity    float64
	Filters          vectorindex.CandidateSet
	IncludeHighlight bool
	Rerank           bool
}

const (
	minQueryLen          = 3
	maxQueryLen          = 1000
	defaultMaxCandidates = 100
)

// EmbeddingProvider is the external collaborator that turns text into a
// vector. It is out of scope for this platform (spec §1: providers are
// external systems); callers wire a concrete client or a test fake.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the subset of vectorindex.Index the engine needs, kept
// as an interface so tests can substitute a fake.
type VectorStore interface {
	Search(vec []float32, k int) ([]vectorindex.ScoredID, error)
	SearchFiltered(vec []float32, k int, candidates vectorindex.CandidateSet) ([]vectorindex.ScoredID, error)
}

// VectorLookup resolves an id back to its stored embedding, needed for
// exact rerank.
type VectorLookup interface {
	Vector(id ulid.ID) ([]float32, bool)
}

// Result is one ranked hit.
type Result struct {
	ID         ulid.ID
	Similarity float64
	Rank       int
}

// Engine wires an embedding cache, a vector index, and an embedding
// provider into the search(query) operation.
type Engine struct {
	provider EmbeddingProvider
	index    VectorStore
	lookup   VectorLookup
	cache    *ristretto.Cache[string, []float32]

	maxCandidates int
	cacheTTL      time.Duration
}

// EngineOption configures non-default Engine behavior.
type EngineOption func(*Engine)

// WithMaxCandidates overrides the default candidate cap of 100.
func WithMaxCandidates(n int) EngineOption {
	return func(e *Engine) { e.maxCandidates = n }
}

// WithCacheTTL overrides the default 5-minute embedding cache TTL.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) { e.cacheTTL = ttl }
}

// NewEngine builds a search engine backed by a 1,000-entry, 5-minute TTL
// ristretto embedding cache (spec §4.G step 2 defaults).
func NewEngine(provider EmbeddingProvider, index VectorStore, lookup VectorLookup, opts ...EngineOption) (*Engine, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: build embedding cache: %w", err)
	}

	e := &Engine{
		provider:      provider,
		index:         index,
		lookup:        lookup,
		cache:         cache,
		maxCandidates: defaultMaxCandidates,
		cacheTTL:      5 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search executes the five-step pipeline in spec §4.G.
func (e *Engine) Search(ctx context.Context, q Query) ([]Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(q.Text))
	if len(normalized) < minQueryLen || len(normalized) > maxQueryLen {
		return nil, fmt.Errorf("semantic: invalid query length %d: %w", len(normalized), domain.ErrInvalidArgument)
	}

	vec, err := e.embed(ctx, normalized)
	if err != nil {
		return nil, err
	}

	k := q.Limit * 10
	if k > e.maxCandidates {
		k = e.maxCandidates
	}
	if k < q.Limit {
		k = q.Limit
	}

	var hits []vectorindex.ScoredID
	if q.Filters != nil {
		hits, err = e.index.SearchFiltered(vec, k, q.Filters)
	} else {
		hits, err = e.index.Search(vec, k)
	}
	if err != nil {
		return nil, fmt.Errorf("semantic: vector search: %w", err)
	}

	if q.Rerank && e.lookup != nil {
		hits = e.rerank(vec, hits)
	}

	out := make([]Result, 0, len(hits))
	for _, h := range hits {
		sim := 1 - h.Distance
		if sim < q.MinSimilarity {
			continue
		}
		out = append(out, Result{ID: h.ID, Similarity: sim})
		if len(out) >= q.Limit {
			break
		}
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

func (e *Engine) embed(ctx context.Context, normalized string) ([]float32, error) {
	if v, ok := e.cache.Get(normalized); ok {
		return v, nil
	}
	vec, err := e.provider.Embed(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", domain.ErrProviderError)
	}
	e.cache.SetWithTTL(normalized, vec, 1, e.cacheTTL)
	e.cache.Wait()
	return vec, nil
}

// rerank recomputes exact cosine similarity for every candidate and
// re-sorts descending (spec §4.G step 5).
func (e *Engine) rerank(query []float32, hits []vectorindex.ScoredID) []vectorindex.ScoredID {
	out := make([]vectorindex.ScoredID, 0, len(hits))
	for _, h := range hits {
		full, ok := e.lookup.Vector(h.ID)
		if !ok {
			out = append(out, h)
			continue
		}
		out = append(out, vectorindex.ScoredID{ID: h.ID, Distance: exactCosineDistance(query, full)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID.Less(out[j].ID)
	})
	return out
}

func exactCosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - sim
}
