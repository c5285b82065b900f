// Package memory implements the collection-scoped content memory used
// by the /memory/ingest and /memory/retrieve endpoints: each named
// collection is backed by its own vector index plus a side table of
// the original content and caller-supplied metadata, embedded through
// the same external EmbeddingProvider the Semantic Search Engine uses.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/semantic"
	"github.com/Strob0t/CodeForge/internal/ulid"
	"github.com/Strob0t/CodeForge/internal/vectorindex"
)

// Record is one piece of ingested content.
type Record struct {
	ID       ulid.ID
	Content  string
	Metadata map[string]string
}

// Hit is a ranked retrieval result.
type Hit struct {
	Record     Record
	Similarity float64
}

// Store holds every collection's vector index and content table.
type Store struct {
	mu       sync.RWMutex
	provider semantic.EmbeddingProvider
	dim      int
	seed     int64

	indexes map[string]*vectorindex.Index
	records map[string]map[ulid.ID]Record
}

// New returns an empty memory Store. dim must match the dimension the
// provider's embeddings produce.
func New(provider semantic.EmbeddingProvider, dim int) *Store {
	return &Store{
		provider: provider,
		dim:      dim,
		seed:     1,
		indexes:  make(map[string]*vectorindex.Index),
		records:  make(map[string]map[ulid.ID]Record),
	}
}

func (s *Store) indexFor(collection string) *vectorindex.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.indexes[collection]
	if !ok {
		idx = vectorindex.New(s.dim, s.seed)
		s.indexes[collection] = idx
		s.records[collection] = make(map[ulid.ID]Record)
	}
	return idx
}

// Ingest embeds content and stores it (with metadata) in collection,
// returning the assigned id.
func (s *Store) Ingest(ctx context.Context, collection, content string, metadata map[string]string) (ulid.ID, error) {
	vec, err := s.provider.Embed(ctx, content)
	if err != nil {
		return ulid.ID{}, fmt.Errorf("memory: embed content: %w", err)
	}

	id, err := ulid.New(time.Now().UnixMilli())
	if err != nil {
		return ulid.ID{}, fmt.Errorf("memory: generate id: %w", err)
	}

	idx := s.indexFor(collection)
	if err := idx.Insert(id, vec); err != nil {
		return ulid.ID{}, fmt.Errorf("memory: insert vector: %w", err)
	}

	s.mu.Lock()
	s.records[collection][id] = Record{ID: id, Content: content, Metadata: metadata}
	s.mu.Unlock()

	return id, nil
}

// Retrieve embeds query and returns the top-k most similar records in
// collection.
func (s *Store) Retrieve(ctx context.Context, collection, query string, k int) ([]Hit, error) {
	s.mu.RLock()
	idx, ok := s.indexes[collection]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: collection %q: %w", collection, domain.ErrNotFound)
	}

	vec, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}

	scored, err := idx.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Hit, 0, len(scored))
	for _, sc := range scored {
		rec, ok := s.records[collection][sc.ID]
		if !ok {
			continue
		}
		out = append(out, Hit{Record: rec, Similarity: 1 - sc.Distance})
	}
	return out, nil
}
