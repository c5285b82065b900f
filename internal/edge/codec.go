package edge

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"

	"github.com/Strob0t/CodeForge/internal/domain"
)

// Field byte offsets within the 128-byte encoded record. Fixed by schema;
// the schema version itself lives in the owning segment's header, not per
// edge (spec §4.A).
const (
	offID             = 0
	offCausalParentID = 16
	offTenantID       = 32
	offProjectID      = 40
	offAgentID        = 42
	offSessionID      = 50
	offTimestampUS    = 58
	offDurationUS     = 66
	offTokenCount     = 70
	offSpanType       = 74
	offFlags          = 75
	offLogicalClock   = 76
	offPayloadOffset  = 84
	offPayloadLength  = 88
	offReserved       = 92 // padding to keep the CRC at a fixed tail offset
	offCRC            = 120
)

var crcTable = crc64.MakeTable(crc64.ISO)

// CorruptEdge is returned by Decode when a 128-byte record fails one of the
// structural checks in spec §4.A.
type CorruptEdge struct {
	Reason string
}

func (e *CorruptEdge) Error() string {
	return fmt.Sprintf("corrupt edge: %s", e.Reason)
}

// Unwrap lets errors.Is(err, domain.ErrCorruption) succeed.
func (e *CorruptEdge) Unwrap() error {
	return domain.ErrCorruption
}

func corrupt(reason string) error {
	return &CorruptEdge{Reason: reason}
}

// Encode serializes e into its fixed 128-byte little-endian wire form.
// Encoding is infallible given a valid in-memory edge (spec §4.A).
func Encode(e Edge) [Size]byte {
	var buf [Size]byte

	copy(buf[offID:], e.ID[:])
	copy(buf[offCausalParentID:], e.CausalParentID[:])
	binary.LittleEndian.PutUint64(buf[offTenantID:], e.TenantID)
	binary.LittleEndian.PutUint16(buf[offProjectID:], e.ProjectID)
	binary.LittleEndian.PutUint64(buf[offAgentID:], e.AgentID)
	binary.LittleEndian.PutUint64(buf[offSessionID:], e.SessionID)
	binary.LittleEndian.PutUint64(buf[offTimestampUS:], uint64(e.TimestampUS)) //nolint:gosec // stored as bits
	binary.LittleEndian.PutUint32(buf[offDurationUS:], e.DurationUS)
	binary.LittleEndian.PutUint32(buf[offTokenCount:], e.TokenCount)
	buf[offSpanType] = byte(e.SpanType)
	buf[offFlags] = e.Flags
	binary.LittleEndian.PutUint64(buf[offLogicalClock:], e.LogicalClock)
	binary.LittleEndian.PutUint32(buf[offPayloadOffset:], e.PayloadOffset)
	binary.LittleEndian.PutUint32(buf[offPayloadLength:], e.PayloadLength)

	sum := crc64.Checksum(buf[:offCRC], crcTable)
	binary.LittleEndian.PutUint64(buf[offCRC:], sum)

	return buf
}

// Decode parses a 128-byte wire record back into an Edge, validating the
// CRC, the span-type enum, the has-payload/payload-length invariant, and
// the reserved-bits invariant. Edges with the tombstone bit set decode
// successfully; callers decide whether to drop them (spec §4.A).
func Decode(buf [Size]byte) (Edge, error) {
	wantSum := binary.LittleEndian.Uint64(buf[offCRC:])
	gotSum := crc64.Checksum(buf[:offCRC], crcTable)
	if wantSum != gotSum {
		return Edge{}, corrupt("crc mismatch")
	}

	var e Edge
	copy(e.ID[:], buf[offID:offID+16])
	copy(e.CausalParentID[:], buf[offCausalParentID:offCausalParentID+16])
	e.TenantID = binary.LittleEndian.Uint64(buf[offTenantID:])
	e.ProjectID = binary.LittleEndian.Uint16(buf[offProjectID:])
	e.AgentID = binary.LittleEndian.Uint64(buf[offAgentID:])
	e.SessionID = binary.LittleEndian.Uint64(buf[offSessionID:])
	e.TimestampUS = int64(binary.LittleEndian.Uint64(buf[offTimestampUS:])) //nolint:gosec // inverse of Encode
	e.DurationUS = binary.LittleEndian.Uint32(buf[offDurationUS:])
	e.TokenCount = binary.LittleEndian.Uint32(buf[offTokenCount:])
	e.SpanType = SpanType(buf[offSpanType])
	e.Flags = buf[offFlags]
	e.LogicalClock = binary.LittleEndian.Uint64(buf[offLogicalClock:])
	e.PayloadOffset = binary.LittleEndian.Uint32(buf[offPayloadOffset:])
	e.PayloadLength = binary.LittleEndian.Uint32(buf[offPayloadLength:])

	if !e.SpanType.Valid() {
		return Edge{}, corrupt("unknown span type")
	}
	if e.Flags&reservedFlagMask != 0 {
		return Edge{}, corrupt("reserved bit set")
	}
	if e.HasPayload() != (e.PayloadLength > 0) {
		return Edge{}, corrupt("has-payload flag inconsistent with payload length")
	}

	return e, nil
}
