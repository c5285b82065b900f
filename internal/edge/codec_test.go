package edge

import (
	"testing"

	"github.com/Strob0t/CodeForge/internal/ulid"
)

func sampleEdge(t *testing.T) Edge {
	t.Helper()
	id, err := ulid.New(1_000_000_000)
	if err != nil {
		t.Fatalf("ulid.New: %v", err)
	}
	return Edge{
		ID:          id,
		TenantID:    1,
		ProjectID:   1,
		AgentID:     7,
		SessionID:   42,
		TimestampUS: 1_000_000,
		DurationUS:  5_000,
		TokenCount:  100,
		SpanType:    SpanLLMCall,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := sampleEdge(t)
	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != e {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, e)
	}
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	buf := Encode(sampleEdge(t))
	buf[0] ^= 0xFF
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected corruption error for flipped byte")
	} else if ce, ok := err.(*CorruptEdge); !ok || ce.Reason != "crc mismatch" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeRejectsUnknownSpanType(t *testing.T) {
	e := sampleEdge(t)
	e.SpanType = SpanType(200)
	buf := Encode(e)
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected corruption error for unknown span type")
	}
}

func TestDecodeRejectsHasPayloadInconsistency(t *testing.T) {
	e := sampleEdge(t)
	e.Flags |= FlagHasPayload
	e.PayloadLength = 0
	buf := Encode(e)
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected corruption error for has-payload/length mismatch")
	}
}

func TestDecodeRejectsReservedBit(t *testing.T) {
	e := sampleEdge(t)
	e.Flags |= 0b1000_0000
	buf := Encode(e)
	if _, err := Decode(buf); err == nil {
		t.Fatal("expected corruption error for reserved bit")
	}
}

func TestTombstoneDecodesNormally(t *testing.T) {
	e := sampleEdge(t)
	e.Flags |= FlagTombstone
	got, err := Decode(Encode(e))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.IsTombstone() {
		t.Fatal("expected tombstone flag to survive round trip")
	}
}

func TestRootEdgeHasZeroParent(t *testing.T) {
	e := sampleEdge(t)
	if !e.IsRoot() {
		t.Fatal("edge with zero causal parent should be root")
	}
}
