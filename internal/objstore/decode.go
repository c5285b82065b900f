package objstore

import (
	"encoding/binary"
	"fmt"
	"time"
)

func readString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, fmt.Errorf("objstore: truncated string length")
	}
	n := binary.LittleEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return "", nil, fmt.Errorf("objstore: truncated string body")
	}
	return string(b[:n]), b[n:], nil
}

func decodeBlob(payload []byte) (Blob, error) {
	contentType, rest, err := readString(payload)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Bytes: append([]byte(nil), rest...), ContentType: contentType}, nil
}

func decodeTree(payload []byte) (Tree, error) {
	if len(payload) < 4 {
		return Tree{}, fmt.Errorf("objstore: truncated tree")
	}
	count := binary.LittleEndian.Uint32(payload[:4])
	rest := payload[4:]

	entries := make([]TreeEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 1+len(OID{}) {
			return Tree{}, fmt.Errorf("objstore: truncated tree entry")
		}
		mode := Mode(rest[0])
		var oid OID
		copy(oid[:], rest[1:1+len(oid)])
		rest = rest[1+len(oid):]

		name, remainder, err := readString(rest)
		if err != nil {
			return Tree{}, err
		}
		rest = remainder
		entries = append(entries, TreeEntry{Name: name, OID: oid, Mode: mode})
	}
	return Tree{Entries: entries}, nil
}

func decodeCommit(payload []byte) (Commit, error) {
	var oidLen = len(OID{})
	if len(payload) < oidLen+4 {
		return Commit{}, fmt.Errorf("objstore: truncated commit")
	}
	var tree OID
	copy(tree[:], payload[:oidLen])
	rest := payload[oidLen:]

	parentCount := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	parents := make([]OID, 0, parentCount)
	for i := uint32(0); i < parentCount; i++ {
		if len(rest) < oidLen {
			return Commit{}, fmt.Errorf("objstore: truncated commit parent")
		}
		var p OID
		copy(p[:], rest[:oidLen])
		parents = append(parents, p)
		rest = rest[oidLen:]
	}

	author, rest, err := readString(rest)
	if err != nil {
		return Commit{}, err
	}
	committer, rest, err := readString(rest)
	if err != nil {
		return Commit{}, err
	}
	if len(rest) < 8 {
		return Commit{}, fmt.Errorf("objstore: truncated commit timestamp")
	}
	timestampUS := int64(binary.LittleEndian.Uint64(rest[:8]))
	rest = rest[8:]

	if len(rest) < 4 {
		return Commit{}, fmt.Errorf("objstore: truncated commit metadata count")
	}
	metaCount := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]
	metadata := make(map[string]string, metaCount)
	for i := uint32(0); i < metaCount; i++ {
		var key, value string
		key, rest, err = readString(rest)
		if err != nil {
			return Commit{}, err
		}
		value, rest, err = readString(rest)
		if err != nil {
			return Commit{}, err
		}
		metadata[key] = value
	}

	return Commit{
		Tree:      tree,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Timestamp: time.UnixMicro(timestampUS).UTC(),
		Metadata:  metadata,
	}, nil
}
