package aff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

func mustEdge(t *testing.T, ts int64) edge.Edge {
	t.Helper()
	id, err := ulid.New(ts)
	if err != nil {
		t.Fatalf("ulid.New: %v", err)
	}
	return edge.Edge{ID: id, TenantID: 1, ProjectID: 1, TimestampUS: ts, SpanType: edge.SpanLLMCall}
}

func TestWriteFinishOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001.aff")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create writer: %v", err)
	}

	e1 := mustEdge(t, 1_000)
	e2 := mustEdge(t, 2_000)
	payload := []byte(`{"ok":true}`)

	if err := w.Add(e1, nil); err != nil {
		t.Fatalf("Add e1: %v", err)
	}
	if err := w.Add(e2, payload); err != nil {
		t.Fatalf("Add e2: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open reader: %v", err)
	}
	defer r.Close()

	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
	if r.Header.MinTimestampUS != 1_000 || r.Header.MaxTimestampUS != 2_000 {
		t.Fatalf("min/max = %d/%d, want 1000/2000", r.Header.MinTimestampUS, r.Header.MaxTimestampUS)
	}

	got1, err := r.Read(0)
	if err != nil {
		t.Fatalf("Read(0): %v", err)
	}
	if got1.ID != e1.ID {
		t.Fatalf("Read(0) id mismatch")
	}

	got2, err := r.Read(1)
	if err != nil {
		t.Fatalf("Read(1): %v", err)
	}
	if !got2.HasPayload() {
		t.Fatal("Read(1) expected has-payload flag")
	}
	gotPayload, err := r.Payload(got2.PayloadOffset, got2.PayloadLength)
	if err != nil {
		t.Fatalf("Payload: %v", err)
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", gotPayload, payload)
	}
}

func TestOpenRejectsZeroedHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crashed.aff")

	// Simulate a writer that crashed mid-Finish: reserved header, no data,
	// never overwritten.
	if err := os.WriteFile(path, make([]byte, HeaderSize), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected corruption error opening a zeroed header")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad-magic.aff")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create writer: %v", err)
	}
	if err := w.Add(mustEdge(t, 1), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteAt([]byte{'X'}, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	_ = f.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected corruption error for bad magic")
	}
}

func TestOpenRejectsCorruptHeaderChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad-checksum.aff")

	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create writer: %v", err)
	}
	if err := w.Add(mustEdge(t, 1), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	// Flip a byte inside the edge-count field, leaving the trailing
	// checksum stale.
	if _, err := f.WriteAt([]byte{0xFF}, hOffEdgeCount); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	_ = f.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected corruption error for mismatched header checksum")
	}
}
