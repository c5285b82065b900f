// Package aff implements the Segment File Format (spec §4.B): an immutable
// on-disk container holding a 256-byte header, a contiguous arena of
// 128-byte edges, a byte-addressed payload region, and an optional
// bloom/offset index segment.
package aff

import (
	"encoding/binary"
	"fmt"
	"hash/crc64"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/edge"
)

// HeaderSize is the fixed size of the segment header, reserved at the start
// of every AFF file.
const HeaderSize = 256

// Magic is the 8-byte value at offset 0 of every valid AFF file (spec §6:
// "A F F V 2 . 0 \0").
var Magic = [8]byte{'A', 'F', 'F', 'V', '2', '.', '0', 0}

// FormatVersion is the schema version carried in the header. Per-edge
// records do not carry their own version (spec §4.A).
const FormatVersion uint16 = 1

// CompressionNone and friends tag the payload segment's compression scheme.
// Only CompressionNone is implemented; the tag exists so a future writer can
// add payload compression without breaking the header layout.
const (
	CompressionNone byte = 0
)

// Header-field byte offsets within the 256-byte header.
const (
	hOffMagic        = 0
	hOffVersion      = 8
	hOffEdgeCount    = 12
	hOffMinTS        = 16
	hOffMaxTS        = 24
	hOffEdgeOffset   = 32
	hOffEdgeLength   = 40
	hOffPayloadOff   = 48
	hOffPayloadLen   = 56
	hOffIndexOffset  = 64
	hOffIndexLength  = 72
	hOffCompression  = 80
	hOffFlags        = 81
	hOffChecksum     = HeaderSize - 8
)

var headerCRCTable = crc64.MakeTable(crc64.ISO)

// Header describes the layout of one AFF segment file.
type Header struct {
	FormatVersion  uint16
	EdgeCount      uint32
	MinTimestampUS int64
	MaxTimestampUS int64
	EdgeOffset     uint64
	EdgeLength     uint64
	PayloadOffset  uint64
	PayloadLength  uint64
	IndexOffset    uint64
	IndexLength    uint64
	Compression    byte
	Flags          byte
}

// Encode serializes h into its 256-byte wire form, including the trailing
// header checksum.
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	copy(buf[hOffMagic:], Magic[:])
	binary.LittleEndian.PutUint16(buf[hOffVersion:], h.FormatVersion)
	binary.LittleEndian.PutUint32(buf[hOffEdgeCount:], h.EdgeCount)
	binary.LittleEndian.PutUint64(buf[hOffMinTS:], uint64(h.MinTimestampUS)) //nolint:gosec // stored as bits
	binary.LittleEndian.PutUint64(buf[hOffMaxTS:], uint64(h.MaxTimestampUS)) //nolint:gosec // stored as bits
	binary.LittleEndian.PutUint64(buf[hOffEdgeOffset:], h.EdgeOffset)
	binary.LittleEndian.PutUint64(buf[hOffEdgeLength:], h.EdgeLength)
	binary.LittleEndian.PutUint64(buf[hOffPayloadOff:], h.PayloadOffset)
	binary.LittleEndian.PutUint64(buf[hOffPayloadLen:], h.PayloadLength)
	binary.LittleEndian.PutUint64(buf[hOffIndexOffset:], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[hOffIndexLength:], h.IndexLength)
	buf[hOffCompression] = h.Compression
	buf[hOffFlags] = h.Flags

	sum := crc64.Checksum(buf[:hOffChecksum], headerCRCTable)
	binary.LittleEndian.PutUint64(buf[hOffChecksum:], sum)
	return buf
}

// DecodeHeader parses and validates a 256-byte header, checking the magic
// and the header checksum (spec §4.B: "any checksum mismatch, magic
// mismatch ... yields Corruption{field}").
func DecodeHeader(buf [HeaderSize]byte) (Header, error) {
	if string(buf[hOffMagic:hOffMagic+8]) != string(Magic[:]) {
		return Header{}, corrupt("magic")
	}

	wantSum := binary.LittleEndian.Uint64(buf[hOffChecksum:])
	gotSum := crc64.Checksum(buf[:hOffChecksum], headerCRCTable)
	if wantSum != gotSum {
		return Header{}, corrupt("header checksum")
	}

	h := Header{
		FormatVersion:  binary.LittleEndian.Uint16(buf[hOffVersion:]),
		EdgeCount:      binary.LittleEndian.Uint32(buf[hOffEdgeCount:]),
		MinTimestampUS: int64(binary.LittleEndian.Uint64(buf[hOffMinTS:])), //nolint:gosec // inverse of Encode
		MaxTimestampUS: int64(binary.LittleEndian.Uint64(buf[hOffMaxTS:])), //nolint:gosec // inverse of Encode
		EdgeOffset:     binary.LittleEndian.Uint64(buf[hOffEdgeOffset:]),
		EdgeLength:     binary.LittleEndian.Uint64(buf[hOffEdgeLength:]),
		PayloadOffset:  binary.LittleEndian.Uint64(buf[hOffPayloadOff:]),
		PayloadLength:  binary.LittleEndian.Uint64(buf[hOffPayloadLen:]),
		IndexOffset:    binary.LittleEndian.Uint64(buf[hOffIndexOffset:]),
		IndexLength:    binary.LittleEndian.Uint64(buf[hOffIndexLength:]),
		Compression:    buf[hOffCompression],
		Flags:          buf[hOffFlags],
	}

	if h.EdgeLength != uint64(h.EdgeCount)*edge.Size {
		return Header{}, corrupt("edge arena length inconsistent with edge count")
	}

	return h, nil
}

// Corruption names the header or segment field that failed validation
// (spec §4.B: "Corruption{field}").
type Corruption struct {
	Field string
}

func (c *Corruption) Error() string {
	return fmt.Sprintf("aff: corruption in %s", c.Field)
}

func (c *Corruption) Unwrap() error {
	return domain.ErrCorruption
}

func corrupt(field string) error {
	return &Corruption{Field: field}
}
