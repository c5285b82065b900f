package vectorindex

import (
	"testing"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

func vec(values ...float32) []float32 { return values }

type idSet map[ulid.ID]bool

func (s idSet) Contains(id ulid.ID) bool { return s[id] }

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx := New(3, 1)
	id := ulid.MustNew(1)
	if err := idx.Insert(id, vec(1, 2)); err == nil {
		t.Fatal("expected dimension mismatch error")
	} else if err != domain.ErrDimensionMismatch {
		t.Fatalf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestSearchFindsExactMatch(t *testing.T) {
	idx := New(2, 42)
	ids := make([]ulid.ID, 0, 20)
	for i := 0; i < 20; i++ {
		id := ulid.MustNew(int64(i + 1))
		ids = append(ids, id)
		if err := idx.Insert(id, vec(float32(i), float32(20-i))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	target := ids[5]
	results, err := idx.Search(vec(5, 15), 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search returned %d results, want 1", len(results))
	}
	if results[0].ID != target {
		t.Fatalf("Search top result = %v, want exact match %v", results[0].ID, target)
	}
}

func TestDeleteIsLogicalAndExcludedFromSearch(t *testing.T) {
	idx := New(2, 7)
	var first ulid.ID
	for i := 0; i < 10; i++ {
		id := ulid.MustNew(int64(i + 1))
		if i == 0 {
			first = id
		}
		if err := idx.Insert(id, vec(float32(i), float32(i))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if err := idx.Delete(first); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if idx.Contains(first) {
		t.Fatal("Contains should be false for a deleted id")
	}

	results, err := idx.Search(vec(0, 0), 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ID == first {
			t.Fatal("deleted id should not appear in search results")
		}
	}
}

func TestSearchFilteredRestrictsToCandidates(t *testing.T) {
	idx := New(2, 3)
	ids := make([]ulid.ID, 0, 15)
	for i := 0; i < 15; i++ {
		id := ulid.MustNew(int64(i + 1))
		ids = append(ids, id)
		if err := idx.Insert(id, vec(float32(i), float32(i))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	allowed := idSet{ids[0]: true, ids[1]: true}
	results, err := idx.SearchFiltered(vec(0, 0), 5, allowed)
	if err != nil {
		t.Fatalf("SearchFiltered: %v", err)
	}
	for _, r := range results {
		if !allowed[r.ID] {
			t.Fatalf("result %v not in allowed candidate set", r.ID)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := New(2, 99)
	for i := 0; i < 10; i++ {
		id := ulid.MustNew(int64(i + 1))
		if err := idx.Insert(id, vec(float32(i), float32(i*2))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	dir := t.TempDir()
	if err := idx.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	results, err := loaded.Search(vec(5, 10), 1)
	if err != nil {
		t.Fatalf("Search after load: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search after load returned %d results, want 1", len(results))
	}
}

func TestRebuildDropsDeletedNodes(t *testing.T) {
	idx := New(2, 11)
	var toDelete ulid.ID
	for i := 0; i < 10; i++ {
		id := ulid.MustNew(int64(i + 1))
		if i == 0 {
			toDelete = id
		}
		if err := idx.Insert(id, vec(float32(i), float32(i))); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := idx.Delete(toDelete); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	rebuilt, err := idx.Rebuild(11)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if rebuilt.Contains(toDelete) {
		t.Fatal("rebuilt index should not contain the deleted id")
	}
}
