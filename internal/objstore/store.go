package objstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Strob0t/CodeForge/internal/domain"
)

// Store is a directory-backed content-addressable object repository,
// laid out the way Git's loose-object store is: objects/<2-hex>/<62-hex>.
type Store struct {
	dir string
}

// Open creates dir (and its objects/refs subdirectories) if needed and
// returns a Store rooted there.
func Open(dir string) (*Store, error) {
	for _, sub := range []string{"objects", "refs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil { //nolint:gosec // local data directory
			return nil, fmt.Errorf("objstore: create %s: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) objectPath(oid OID) string {
	hex := oid.String()
	return filepath.Join(s.dir, "objects", hex[:2], hex[2:])
}

// WriteBlob persists b and returns its oid. Writing is idempotent:
// re-writing identical content is a no-op past the existence check.
func (s *Store) WriteBlob(b Blob) (OID, error) { return s.write(b) }

// WriteTree persists t (after sorting its entries by name) and returns
// its oid.
func (s *Store) WriteTree(t Tree) (OID, error) { return s.write(t) }

// WriteCommit persists c and returns its oid.
func (s *Store) WriteCommit(c Commit) (OID, error) { return s.write(c) }

func (s *Store) write(obj object) (OID, error) {
	oid, tagged := hashObject(obj)
	path := s.objectPath(oid)
	if _, err := os.Stat(path); err == nil {
		return oid, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // local data directory
		return OID{}, fmt.Errorf("objstore: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, tagged, 0o600); err != nil {
		return OID{}, fmt.Errorf("objstore: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return OID{}, fmt.Errorf("objstore: rename: %w", err)
	}
	return oid, nil
}

// Exists reports whether oid is present in the store.
func (s *Store) Exists(oid OID) bool {
	_, err := os.Stat(s.objectPath(oid))
	return err == nil
}

func (s *Store) readTagged(oid OID) ([]byte, error) {
	raw, err := os.ReadFile(s.objectPath(oid))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("objstore: read: %w", err)
	}
	return raw, nil
}

// ReadBlob reads and decodes the blob at oid.
func (s *Store) ReadBlob(oid OID) (Blob, error) {
	tagged, err := s.readTagged(oid)
	if err != nil {
		return Blob{}, err
	}
	k, payload, err := kindOf(tagged)
	if err != nil {
		return Blob{}, err
	}
	if k != kindBlob {
		return Blob{}, fmt.Errorf("objstore: %s is not a blob", oid.Short())
	}
	return decodeBlob(payload)
}

// ReadTree reads and decodes the tree at oid.
func (s *Store) ReadTree(oid OID) (Tree, error) {
	tagged, err := s.readTagged(oid)
	if err != nil {
		return Tree{}, err
	}
	k, payload, err := kindOf(tagged)
	if err != nil {
		return Tree{}, err
	}
	if k != kindTree {
		return Tree{}, fmt.Errorf("objstore: %s is not a tree", oid.Short())
	}
	return decodeTree(payload)
}

// ReadCommit reads and decodes the commit at oid.
func (s *Store) ReadCommit(oid OID) (Commit, error) {
	tagged, err := s.readTagged(oid)
	if err != nil {
		return Commit{}, err
	}
	k, payload, err := kindOf(tagged)
	if err != nil {
		return Commit{}, err
	}
	if k != kindCommit {
		return Commit{}, fmt.Errorf("objstore: %s is not a commit", oid.Short())
	}
	return decodeCommit(payload)
}
