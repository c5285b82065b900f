package objstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Strob0t/CodeForge/internal/domain"
)

// Refs maps branch names to commit oids, persisted as one file per ref
// under the store's refs/ directory (spec §4.J: "Refs map names to
// commit oids; updates are compare-and-set").
type Refs struct {
	dir string
	mu  sync.Mutex
}

// NewRefs returns a Refs rooted at <storeDir>/refs.
func NewRefs(storeDir string) *Refs {
	return &Refs{dir: filepath.Join(storeDir, "refs")}
}

func (r *Refs) path(name string) (string, error) {
	if strings.ContainsAny(name, "/\\") || name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("objstore: invalid ref name %q", name)
	}
	return filepath.Join(r.dir, name), nil
}

// Get reads the oid a ref currently points at.
func (r *Refs) Get(name string) (OID, error) {
	path, err := r.path(name)
	if err != nil {
		return OID{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return OID{}, domain.ErrNotFound
		}
		return OID{}, fmt.Errorf("objstore: read ref: %w", err)
	}
	return ParseOID(strings.TrimSpace(string(raw)))
}

// Set creates or overwrites name to point at oid unconditionally
// (used for branching onto a fresh name).
func (r *Refs) Set(name string, oid OID) error {
	path, err := r.path(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return os.WriteFile(path, []byte(oid.String()+"\n"), 0o600)
}

// CompareAndSet updates name to newOID only if it currently points at
// oldOID (or doesn't exist yet, when oldOID is the zero value).
func (r *Refs) CompareAndSet(name string, oldOID, newOID OID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.Get(name)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
		if !oldOID.IsZero() {
			return false, nil
		}
	} else if current != oldOID {
		return false, nil
	}

	path, err := r.path(name)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(newOID.String()+"\n"), 0o600); err != nil {
		return false, fmt.Errorf("objstore: write ref: %w", err)
	}
	return true, nil
}

// List returns every ref name currently present.
func (r *Refs) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("objstore: list refs: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
