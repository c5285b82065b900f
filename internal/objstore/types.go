// Package objstore implements the Response Object Store (spec §4.J): a
// Git-shaped, content-addressable blob/tree/commit repository over
// response artifacts, with compare-and-set refs and patience diff.
package objstore

import "time"

// Mode names what kind of thing a tree entry's oid points at.
type Mode byte

const (
	ModeBlob Mode = iota
	ModeExecutable
	ModeTree
	ModeSymlink
)

func (m Mode) String() string {
	switch m {
	case ModeBlob:
		return "blob"
	case ModeExecutable:
		return "executable"
	case ModeTree:
		return "tree"
	case ModeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Blob is an immutable byte payload tagged with a content type.
type Blob struct {
	Bytes       []byte
	ContentType string
}

// TreeEntry is one name-sorted member of a Tree.
type TreeEntry struct {
	Name string
	OID  OID
	Mode Mode
}

// Tree is a name-sorted directory listing of other objects.
type Tree struct {
	Entries []TreeEntry
}

// Commit links a tree snapshot to its history. Zero parents marks an
// initial commit, one a linear child, two or more a merge (spec §4.J).
type Commit struct {
	Tree      OID
	Parents   []OID
	Author    string
	Committer string
	Timestamp time.Time
	Metadata  map[string]string
}
