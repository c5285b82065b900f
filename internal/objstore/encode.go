package objstore

import (
	"encoding/binary"
	"fmt"
	"sort"

	"lukechampine.com/blake3"
)

type kind byte

const (
	kindBlob kind = 'B'
	kindTree kind = 'T'
	kindCommit kind = 'C'
)

// object is implemented by Blob, Tree, and Commit: each knows how to
// render itself into the canonical byte form that gets hashed and
// persisted.
type object interface {
	encode() []byte
	objectKind() kind
}

func (b Blob) objectKind() kind { return kindBlob }

func (b Blob) encode() []byte {
	out := make([]byte, 0, len(b.ContentType)+len(b.Bytes)+8)
	out = appendString(out, b.ContentType)
	out = append(out, b.Bytes...)
	return out
}

func (t Tree) objectKind() kind { return kindTree }

func (t Tree) encode() []byte {
	sorted := make([]TreeEntry, len(t.Entries))
	copy(sorted, t.Entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := make([]byte, 0, len(sorted)*48)
	out = appendUint32(out, uint32(len(sorted)))
	for _, e := range sorted {
		out = append(out, byte(e.Mode))
		out = append(out, e.OID[:]...)
		out = appendString(out, e.Name)
	}
	return out
}

func (c Commit) objectKind() kind { return kindCommit }

func (c Commit) encode() []byte {
	out := make([]byte, 0, 128)
	out = append(out, c.Tree[:]...)
	out = appendUint32(out, uint32(len(c.Parents)))
	for _, p := range c.Parents {
		out = append(out, p[:]...)
	}
	out = appendString(out, c.Author)
	out = appendString(out, c.Committer)
	out = appendUint64(out, uint64(c.Timestamp.UnixMicro()))

	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out = appendUint32(out, uint32(len(keys)))
	for _, k := range keys {
		out = appendString(out, k)
		out = appendString(out, c.Metadata[k])
	}
	return out
}

func appendString(out []byte, s string) []byte {
	out = appendUint32(out, uint32(len(s)))
	return append(out, s...)
}

func appendUint32(out []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(out, buf[:]...)
}

func appendUint64(out []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(out, buf[:]...)
}

// hashObject computes the OID of obj: BLAKE3-32 over a one-byte kind
// tag followed by its canonical encoding, so distinct object kinds with
// coincidentally identical payload bytes never collide.
func hashObject(obj object) (OID, []byte) {
	payload := obj.encode()
	tagged := make([]byte, 0, len(payload)+1)
	tagged = append(tagged, byte(obj.objectKind()))
	tagged = append(tagged, payload...)
	sum := blake3.Sum256(tagged)
	return OID(sum), tagged
}

func kindOf(tagged []byte) (kind, []byte, error) {
	if len(tagged) == 0 {
		return 0, nil, fmt.Errorf("objstore: empty object")
	}
	return kind(tagged[0]), tagged[1:], nil
}
