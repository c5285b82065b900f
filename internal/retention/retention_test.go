package retention

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/store"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

func mustEdge(t *testing.T, tenant uint64, ts int64) edge.Edge {
	t.Helper()
	id, err := ulid.New(ts)
	if err != nil {
		t.Fatalf("ulid.New: %v", err)
	}
	return edge.Edge{ID: id, TenantID: tenant, ProjectID: 1, TimestampUS: ts, SpanType: edge.SpanLLMCall}
}

func TestDefaultConfigRetentionDays(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.RetentionDays("production"); got != 30 {
		t.Fatalf("production retention = %d, want 30", got)
	}
	if got := cfg.RetentionDays("development"); got != 7 {
		t.Fatalf("development retention = %d, want 7", got)
	}
	if got := cfg.RetentionDays("staging"); got != 30 {
		t.Fatalf("unknown env retention = %d, want default 30", got)
	}
}

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg := LoadConfig("/nonexistent/retention-config.json")
	if len(cfg.Policies) != len(DefaultConfig().Policies) {
		t.Fatal("expected defaults when config file is missing")
	}
}

func TestApplyRetentionDeletesExpiredEdges(t *testing.T) {
	s, err := store.Open(t.TempDir(), 1) // flush every append so compact has segments to merge
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	now := time.UnixMicro(100_000_000_000)
	oldEdge := mustEdge(t, 1, now.UnixMicro()-40*86_400*1_000_000) // 40 days old
	freshEdge := mustEdge(t, 1, now.UnixMicro()-1*86_400*1_000_000)

	if err := s.Append(oldEdge, nil); err != nil {
		t.Fatalf("Append old: %v", err)
	}
	if err := s.Append(freshEdge, nil); err != nil {
		t.Fatalf("Append fresh: %v", err)
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	mgr := NewManager(s, DefaultConfig(), "production", metrics, nil)

	if err := mgr.ApplyRetention(now); err != nil {
		t.Fatalf("ApplyRetention: %v", err)
	}

	if _, err := s.Get(1, oldEdge.ID); err == nil {
		t.Fatal("expired edge should have been removed by retention")
	}
	if _, err := s.Get(1, freshEdge.ID); err != nil {
		t.Fatalf("fresh edge should survive retention: %v", err)
	}
}
