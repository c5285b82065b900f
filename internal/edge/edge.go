// Package edge implements the fixed-size edge record and its codec (spec
// §3, §4.A): the 128-byte unit of observation describing one span of agent
// execution, plus encode/decode between the in-memory Edge and its on-disk
// representation.
package edge

import (
	"fmt"

	"github.com/Strob0t/CodeForge/internal/ulid"
)

// Size is the fixed wire size of an encoded edge, in bytes.
const Size = 128

// SpanType is the closed enum of observable span kinds (spec §3).
type SpanType uint8

const (
	SpanPlanning SpanType = iota
	SpanToolCall
	SpanRetrieval
	SpanLLMCall
	SpanError
	SpanCustom
)

// spanTypeCount bounds the closed enum; decode rejects anything >= this.
const spanTypeCount = SpanCustom + 1

// Valid reports whether t is a member of the closed SpanType enum.
func (t SpanType) Valid() bool {
	return t < spanTypeCount
}

var spanTypeNames = [spanTypeCount]string{
	SpanPlanning:  "planning",
	SpanToolCall:  "tool_call",
	SpanRetrieval: "retrieval",
	SpanLLMCall:   "llm_call",
	SpanError:     "error",
	SpanCustom:    "custom",
}

// String renders t as its wire name, used by the HTTP ingestion API.
func (t SpanType) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return spanTypeNames[t]
}

// ParseSpanType resolves a wire name back to its SpanType.
func ParseSpanType(name string) (SpanType, error) {
	for t, n := range spanTypeNames {
		if n == name {
			return SpanType(t), nil
		}
	}
	return 0, fmt.Errorf("edge: unknown span type %q", name)
}

// Flag bits packed into Edge.Flags (spec §3).
const (
	FlagError        uint8 = 1 << 0
	FlagHasPayload   uint8 = 1 << 1
	FlagTombstone    uint8 = 1 << 2
	FlagHasEmbedding uint8 = 1 << 3
	// reservedFlagMask covers bits 4-7, which must be zero (spec §4.A:
	// "reserved-bit violation").
	reservedFlagMask uint8 = 0b1111_0000
)

// Edge is the in-memory representation of one 128-byte trace record.
type Edge struct {
	ID             ulid.ID
	CausalParentID ulid.ID
	TenantID       uint64
	ProjectID      uint16
	AgentID        uint64
	SessionID      uint64
	TimestampUS    int64
	DurationUS     uint32
	TokenCount     uint32
	SpanType       SpanType
	Flags          uint8
	LogicalClock   uint64
	PayloadOffset  uint32
	PayloadLength  uint32
}

// HasFlag reports whether the given flag bit is set.
func (e Edge) HasFlag(flag uint8) bool {
	return e.Flags&flag != 0
}

// IsTombstone reports whether e marks a prior edge as deleted.
func (e Edge) IsTombstone() bool {
	return e.HasFlag(FlagTombstone)
}

// IsError reports whether e's error flag is set.
func (e Edge) IsError() bool {
	return e.HasFlag(FlagError)
}

// HasPayload reports whether e carries an associated payload.
func (e Edge) HasPayload() bool {
	return e.HasFlag(FlagHasPayload)
}

// IsRoot reports whether e has no causal parent.
func (e Edge) IsRoot() bool {
	return e.CausalParentID.IsZero()
}

// Key returns the (tenant, project, timestamp, id) ordering key the
// memtable and segments sort by (spec §4.C).
type Key struct {
	TenantID  uint64
	ProjectID uint16
	Timestamp int64
	ID        ulid.ID
}

// Key returns e's ordering key.
func (e Edge) Key() Key {
	return Key{TenantID: e.TenantID, ProjectID: e.ProjectID, Timestamp: e.TimestampUS, ID: e.ID}
}

// Less defines the total order used by the memtable and range scans:
// (tenant, project, timestamp, edge_id).
func (k Key) Less(other Key) bool {
	if k.TenantID != other.TenantID {
		return k.TenantID < other.TenantID
	}
	if k.ProjectID != other.ProjectID {
		return k.ProjectID < other.ProjectID
	}
	if k.Timestamp != other.Timestamp {
		return k.Timestamp < other.Timestamp
	}
	return k.ID.Less(other.ID)
}
