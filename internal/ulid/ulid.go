// Package ulid implements the 128-bit, time-prefixed, random-suffixed
// identifier used for edge ids and causal-parent ids (spec §3: "128-bit
// edge id (ULID-like: time-prefixed, random suffix)"). It is intentionally
// small and dependency-free: the id's bit layout (48-bit millisecond
// timestamp, 80-bit randomness) is fixed by the specification, which rules
// out github.com/google/uuid (128-bit random or time-based-per-RFC-4122
// layout, not this one) — see DESIGN.md.
package ulid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ID is a 128-bit identifier: bytes 0-5 are a 48-bit millisecond timestamp
// (big-endian), bytes 6-15 are cryptographically random.
type ID [16]byte

// Zero is the all-zero ID, used to mark a root edge with no causal parent.
var Zero ID

// New generates an ID with the given millisecond timestamp and random
// suffix.
func New(timestampMS int64) (ID, error) {
	var id ID
	putTimestamp(&id, timestampMS)
	if _, err := rand.Read(id[6:]); err != nil {
		return ID{}, fmt.Errorf("ulid: read random suffix: %w", err)
	}
	return id, nil
}

// MustNew is like New but panics on a random-source failure. Safe to use at
// startup paths where crypto/rand failing indicates a fatal host problem.
func MustNew(timestampMS int64) ID {
	id, err := New(timestampMS)
	if err != nil {
		panic(err)
	}
	return id
}

func putTimestamp(id *ID, timestampMS int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(timestampMS)) //nolint:gosec // truncated to 48 bits below
	copy(id[0:6], buf[2:8])
}

// Timestamp extracts the embedded millisecond timestamp.
func (id ID) Timestamp() int64 {
	var buf [8]byte
	copy(buf[2:8], id[0:6])
	return int64(binary.BigEndian.Uint64(buf[:])) //nolint:gosec // by construction fits in 48 bits
}

// IsZero reports whether id is the all-zero root marker.
func (id ID) IsZero() bool {
	return id == Zero
}

// String renders the id as lowercase hex.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Parse decodes a 32-character hex string produced by String.
func Parse(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("ulid: parse %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("ulid: parse %q: want %d bytes, got %d", s, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Less reports whether id sorts before other (used for ANN tie-breaks: "the
// smaller id" wins, spec §4.F).
func (id ID) Less(other ID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// MarshalBinary returns the raw 16 bytes of id.
func (id ID) MarshalBinary() ([]byte, error) {
	out := make([]byte, len(id))
	copy(out, id[:])
	return out, nil
}

// UnmarshalBinary sets id from a 16-byte slice produced by MarshalBinary.
func (id *ID) UnmarshalBinary(b []byte) error {
	if len(b) != len(id) {
		return fmt.Errorf("ulid: unmarshal: want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return nil
}
