package semantic

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/ulid"
	"github.com/Strob0t/CodeForge/internal/vectorindex"
)

type fakeProvider struct {
	calls int
	vec   []float32
	err   error
}

func (f *fakeProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeIndex struct {
	hits []vectorindex.ScoredID
}

func (f *fakeIndex) Search(_ []float32, k int) ([]vectorindex.ScoredID, error) {
	if k < len(f.hits) {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func (f *fakeIndex) SearchFiltered(_ []float32, k int, candidates vectorindex.CandidateSet) ([]vectorindex.ScoredID, error) {
	out := make([]vectorindex.ScoredID, 0, len(f.hits))
	for _, h := range f.hits {
		if candidates.Contains(h.ID) {
			out = append(out, h)
		}
	}
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func TestSearchRejectsShortQuery(t *testing.T) {
	e, err := NewEngine(&fakeProvider{}, &fakeIndex{}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.Search(context.Background(), Query{Text: "hi", Limit: 5}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("Search with short query = %v, want ErrInvalidArgument", err)
	}
}

func TestSearchCachesEmbedding(t *testing.T) {
	id1 := ulid.MustNew(1)
	provider := &fakeProvider{vec: []float32{1, 0}}
	index := &fakeIndex{hits: []vectorindex.ScoredID{{ID: id1, Distance: 0.1}}}

	e, err := NewEngine(provider, index, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := e.Search(context.Background(), Query{Text: "  Hello World  ", Limit: 5}); err != nil {
			t.Fatalf("Search iteration %d: %v", i, err)
		}
	}
	if provider.calls != 1 {
		t.Fatalf("provider called %d times, want 1 (cache should absorb repeats)", provider.calls)
	}
}

func TestSearchFiltersByMinSimilarity(t *testing.T) {
	id1 := ulid.MustNew(1)
	id2 := ulid.MustNew(2)
	provider := &fakeProvider{vec: []float32{1, 0}}
	index := &fakeIndex{hits: []vectorindex.ScoredID{
		{ID: id1, Distance: 0.1}, // similarity 0.9
		{ID: id2, Distance: 0.8}, // similarity 0.2
	}}

	e, err := NewEngine(provider, index, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	results, err := e.Search(context.Background(), Query{Text: "search query", Limit: 5, MinSimilarity: 0.5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != id1 {
		t.Fatalf("expected only id1 to pass the similarity threshold, got %+v", results)
	}
}
