package objstore

import (
	"encoding/hex"
	"fmt"
)

// OID is a BLAKE3-32 object id (spec §4.J, §6.2: "Object ids are
// BLAKE3-32"). Equal content always hashes to an equal OID.
type OID [32]byte

// shortLen is the number of hex characters in an OID's short form
// (spec §6.2).
const shortLen = 14

// String renders oid as 64-char lowercase hex.
func (oid OID) String() string {
	return hex.EncodeToString(oid[:])
}

// Short renders oid's first 14 hex characters.
func (oid OID) Short() string {
	return oid.String()[:shortLen]
}

// IsZero reports whether oid is the all-zero value (used to represent
// "no tree"/"no parent").
func (oid OID) IsZero() bool {
	return oid == OID{}
}

// ParseOID decodes a 64-char hex string into an OID.
func ParseOID(s string) (OID, error) {
	var oid OID
	b, err := hex.DecodeString(s)
	if err != nil {
		return oid, fmt.Errorf("objstore: parse oid: %w", err)
	}
	if len(b) != len(oid) {
		return oid, fmt.Errorf("objstore: parse oid: want %d bytes, got %d", len(oid), len(b))
	}
	copy(oid[:], b)
	return oid, nil
}
