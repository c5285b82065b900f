package objstore

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/CodeForge/internal/domain"
)

func TestBlobOIDIsStableAndDeterministic(t *testing.T) {
	b1 := Blob{Bytes: []byte("hello"), ContentType: "text/plain"}
	b2 := Blob{Bytes: []byte("hello"), ContentType: "text/plain"}
	oid1, _ := hashObject(b1)
	oid2, _ := hashObject(b2)
	if oid1 != oid2 {
		t.Fatalf("identical blobs hashed to different oids: %s vs %s", oid1, oid2)
	}

	b3 := Blob{Bytes: []byte("hello!"), ContentType: "text/plain"}
	oid3, _ := hashObject(b3)
	if oid1 == oid3 {
		t.Fatal("different blobs hashed to the same oid")
	}
}

func TestStoreWriteReadRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	blobOID, err := store.WriteBlob(Blob{Bytes: []byte("payload"), ContentType: "application/json"})
	if err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}
	if !store.Exists(blobOID) {
		t.Fatal("Exists = false after WriteBlob")
	}
	gotBlob, err := store.ReadBlob(blobOID)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if string(gotBlob.Bytes) != "payload" || gotBlob.ContentType != "application/json" {
		t.Fatalf("ReadBlob = %+v, want payload/application/json", gotBlob)
	}

	treeOID, err := store.WriteTree(Tree{Entries: []TreeEntry{
		{Name: "b.txt", OID: blobOID, Mode: ModeBlob},
		{Name: "a.txt", OID: blobOID, Mode: ModeBlob},
	}})
	if err != nil {
		t.Fatalf("WriteTree: %v", err)
	}
	gotTree, err := store.ReadTree(treeOID)
	if err != nil {
		t.Fatalf("ReadTree: %v", err)
	}
	if len(gotTree.Entries) != 2 || gotTree.Entries[0].Name != "a.txt" || gotTree.Entries[1].Name != "b.txt" {
		t.Fatalf("ReadTree entries not sorted by name: %+v", gotTree.Entries)
	}

	commitOID, err := store.WriteCommit(Commit{
		Tree:      treeOID,
		Author:    "alice",
		Committer: "alice",
		Timestamp: time.Unix(1_700_000_000, 0),
		Metadata:  map[string]string{"source": "ingest"},
	})
	if err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	gotCommit, err := store.ReadCommit(commitOID)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(gotCommit.Parents) != 0 {
		t.Fatalf("zero-parent commit should decode with no parents, got %v", gotCommit.Parents)
	}
	if gotCommit.Tree != treeOID || gotCommit.Metadata["source"] != "ingest" {
		t.Fatalf("ReadCommit = %+v, want tree %s and metadata source=ingest", gotCommit, treeOID)
	}
}

func TestReadMissingObjectReturnsNotFound(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	var missing OID
	missing[0] = 0xAB
	if _, err := store.ReadBlob(missing); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ReadBlob of missing oid = %v, want ErrNotFound", err)
	}
}

func TestRefsCompareAndSet(t *testing.T) {
	refs := NewRefs(t.TempDir())

	var oidA, oidB OID
	oidA[0] = 1
	oidB[0] = 2

	ok, err := refs.CompareAndSet("main", OID{}, oidA)
	if err != nil || !ok {
		t.Fatalf("initial CompareAndSet(zero -> oidA) = %v, %v, want true, nil", ok, err)
	}

	ok, err = refs.CompareAndSet("main", oidB, oidA)
	if err != nil {
		t.Fatalf("CompareAndSet with wrong expected: %v", err)
	}
	if ok {
		t.Fatal("CompareAndSet succeeded with a stale expected oid")
	}

	ok, err = refs.CompareAndSet("main", oidA, oidB)
	if err != nil || !ok {
		t.Fatalf("CompareAndSet(oidA -> oidB) = %v, %v, want true, nil", ok, err)
	}

	got, err := refs.Get("main")
	if err != nil || got != oidB {
		t.Fatalf("Get(main) = %v, %v, want %v, nil", got, err, oidB)
	}
}

func TestDiffTreesCategorizesEntries(t *testing.T) {
	var oid1, oid2 OID
	oid1[0], oid2[0] = 1, 2

	a := Tree{Entries: []TreeEntry{
		{Name: "kept.txt", OID: oid1, Mode: ModeBlob},
		{Name: "changed.txt", OID: oid1, Mode: ModeBlob},
		{Name: "removed.txt", OID: oid1, Mode: ModeBlob},
	}}
	b := Tree{Entries: []TreeEntry{
		{Name: "kept.txt", OID: oid1, Mode: ModeBlob},
		{Name: "changed.txt", OID: oid2, Mode: ModeBlob},
		{Name: "added.txt", OID: oid2, Mode: ModeBlob},
	}}

	diff := DiffTrees(a, b)
	if len(diff.Added) != 1 || diff.Added[0].Name != "added.txt" {
		t.Fatalf("Added = %+v, want [added.txt]", diff.Added)
	}
	if len(diff.Removed) != 1 || diff.Removed[0].Name != "removed.txt" {
		t.Fatalf("Removed = %+v, want [removed.txt]", diff.Removed)
	}
	if len(diff.Modified) != 1 || diff.Modified[0].Name != "changed.txt" {
		t.Fatalf("Modified = %+v, want [changed.txt]", diff.Modified)
	}
	if len(diff.Unchanged) != 1 || diff.Unchanged[0].Name != "kept.txt" {
		t.Fatalf("Unchanged = %+v, want [kept.txt]", diff.Unchanged)
	}
}

func TestDiffBlobsSingleLineChange(t *testing.T) {
	a := Blob{Bytes: []byte("line1\nline2\nline3\n"), ContentType: "text/plain"}
	b := Blob{Bytes: []byte("line1\nmodified\nline3\n"), ContentType: "text/plain"}

	diff := DiffBlobs(a, b, DefaultDiffOptions())

	if len(diff.Hunks) != 1 {
		t.Fatalf("Hunks = %d, want 1", len(diff.Hunks))
	}

	var removed, added []string
	for _, l := range diff.Hunks[0].Lines {
		switch l.Type {
		case Removed:
			removed = append(removed, l.Text)
		case Added:
			added = append(added, l.Text)
		}
	}
	if len(removed) != 1 || removed[0] != "line2\n" {
		t.Fatalf("removed lines = %v, want exactly [\"line2\\n\"]", removed)
	}
	if len(added) != 1 || added[0] != "modified\n" {
		t.Fatalf("added lines = %v, want exactly [\"modified\\n\"]", added)
	}

	const wantPrefix = "--- a/file.txt\n+++ b/file.txt\n"
	if len(diff.Unified) < len(wantPrefix) || diff.Unified[:len(wantPrefix)] != wantPrefix {
		t.Fatalf("Unified does not start with %q, got %q", wantPrefix, diff.Unified)
	}
}

func TestDiffBlobsIdenticalContentHasSimilarityOne(t *testing.T) {
	blob := Blob{Bytes: []byte("same\ncontent\n"), ContentType: "text/plain"}
	diff := DiffBlobs(blob, blob, DefaultDiffOptions())
	if diff.Similarity != 1.0 {
		t.Fatalf("Similarity = %v, want 1.0 for identical blobs", diff.Similarity)
	}
	if len(diff.Hunks) != 0 {
		t.Fatalf("Hunks = %v, want none for identical blobs", diff.Hunks)
	}
}

func TestDiffBlobsNonTextReturnsOnlySimilarity(t *testing.T) {
	a := Blob{Bytes: []byte{0x00, 0x01, 0x02}, ContentType: "application/octet-stream"}
	b := Blob{Bytes: []byte{0x00, 0x01, 0x03}, ContentType: "application/octet-stream"}

	diff := DiffBlobs(a, b, DefaultDiffOptions())
	if len(diff.Hunks) != 0 {
		t.Fatalf("Hunks = %v, want none for binary content", diff.Hunks)
	}
	if diff.Similarity != 0.0 {
		t.Fatalf("Similarity = %v, want 0.0 for differing binary content", diff.Similarity)
	}
}
