package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

func newEdge(t *testing.T, tenant uint64, ts int64, agent uint64) edge.Edge {
	t.Helper()
	id, err := ulid.New(ts)
	if err != nil {
		t.Fatalf("ulid.New: %v", err)
	}
	return edge.Edge{
		ID:          id,
		TenantID:    tenant,
		ProjectID:   1,
		AgentID:     agent,
		SessionID:   1,
		TimestampUS: ts,
		SpanType:    edge.SpanLLMCall,
	}
}

func TestAppendThenGet(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultMemtableMaxBytes)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	e := newEdge(t, 7, 1_000, 42)
	if err := s.Append(e, []byte("payload")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Get(7, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != e.ID {
		t.Fatalf("Get returned wrong edge")
	}

	payload, err := s.GetPayload(7, e.ID)
	if err != nil {
		t.Fatalf("GetPayload: %v", err)
	}
	if string(payload) != "payload" {
		t.Fatalf("GetPayload = %q, want %q", payload, "payload")
	}
}

func TestDeleteMakesEdgeNotFound(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultMemtableMaxBytes)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	e := newEdge(t, 1, 1_000, 1)
	if err := s.Append(e, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Delete(1, e.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.Get(1, e.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get after Delete = %v, want domain.ErrNotFound", err)
	}
}

func TestRangeScanFiltersByTimeAndAgent(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultMemtableMaxBytes)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	e1 := newEdge(t, 3, 1_000, 1)
	e2 := newEdge(t, 3, 2_000, 2)
	e3 := newEdge(t, 3, 3_000, 1)
	for _, e := range []edge.Edge{e1, e2, e3} {
		if err := s.Append(e, nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	agent := uint64(1)
	results, err := s.RangeScan(3, 0, 5_000, Filters{AgentID: &agent})
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("RangeScan returned %d edges, want 2", len(results))
	}
	for _, e := range results {
		if e.AgentID != 1 {
			t.Fatalf("unexpected agent %d in filtered results", e.AgentID)
		}
	}
}

func TestFlushSealsSegmentAndSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 1) // flush after every append
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	e := newEdge(t, 9, 1_000, 1)
	if err := s.Append(e, []byte("x")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	segs, err := filepath.Glob(filepath.Join(dir, "segments", tenantHex(9), "*.aff"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(segs) == 0 {
		t.Fatal("expected flush to produce an AFF segment")
	}

	s2, err := Open(dir, DefaultMemtableMaxBytes)
	if err != nil {
		t.Fatalf("reopen Store: %v", err)
	}
	got, err := s2.Get(9, e.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.ID != e.ID {
		t.Fatal("edge mismatch after reopen")
	}
}

func TestCompactDropsTombstonesAndExpired(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 1) // flush after every append so we get multiple segments
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	live := newEdge(t, 4, 10_000, 1)
	expired := newEdge(t, 4, 1_000, 1)
	if err := s.Append(live, nil); err != nil {
		t.Fatalf("Append live: %v", err)
	}
	if err := s.Append(expired, nil); err != nil {
		t.Fatalf("Append expired: %v", err)
	}
	toDelete := newEdge(t, 4, 20_000, 1)
	if err := s.Append(toDelete, nil); err != nil {
		t.Fatalf("Append toDelete: %v", err)
	}
	if err := s.Delete(4, toDelete.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	before, err := s.RangeScan(4, 0, 1_000_000, Filters{})
	if err != nil {
		t.Fatalf("RangeScan before compact: %v", err)
	}

	if err := s.Compact(4, 5_000); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	after, err := s.RangeScan(4, 0, 1_000_000, Filters{})
	if err != nil {
		t.Fatalf("RangeScan after compact: %v", err)
	}
	if len(after) > len(before) {
		t.Fatalf("compaction grew live edge count: before=%d after=%d", len(before), len(after))
	}
	if len(after) != 1 || after[0].ID != live.ID {
		t.Fatalf("expected only the live, non-expired edge to survive compaction, got %d edges", len(after))
	}
}

func TestUsageAccountsForAppendedData(t *testing.T) {
	s, err := Open(t.TempDir(), DefaultMemtableMaxBytes)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	before, err := s.Usage(5)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if err := s.Append(newEdge(t, 5, 1_000, 1), []byte("abcdefgh")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	after, err := s.Usage(5)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if after <= before {
		t.Fatalf("Usage did not grow after append: before=%d after=%d", before, after)
	}
}
