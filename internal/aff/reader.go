package aff

import (
	"fmt"
	"os"

	"github.com/Strob0t/CodeForge/internal/edge"
)

// Reader provides random access and full scans over a sealed AFF segment
// (spec §4.B).
type Reader struct {
	f      *os.File
	path   string
	Header Header
}

// Open reads and verifies the header checksum, returning a Reader exposing
// header metadata and random access by edge index.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path) //nolint:gosec // path is constructed by the store from its own segment directory
	if err != nil {
		return nil, fmt.Errorf("aff: open %s: %w", path, err)
	}

	var hbuf [HeaderSize]byte
	if _, err := f.ReadAt(hbuf[:], 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("aff: read header %s: %w", path, err)
	}

	h, err := DecodeHeader(hbuf)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("aff: %s: %w", path, err)
	}

	return &Reader{f: f, path: path, Header: h}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Count returns the number of edges in the segment.
func (r *Reader) Count() int {
	return int(r.Header.EdgeCount)
}

// Read returns the decoded edge at index i (0-based, arena order).
func (r *Reader) Read(i int) (edge.Edge, error) {
	if i < 0 || uint32(i) >= r.Header.EdgeCount { //nolint:gosec // bounds-checked above
		return edge.Edge{}, fmt.Errorf("aff: index %d out of range [0,%d)", i, r.Header.EdgeCount)
	}

	var buf [edge.Size]byte
	off := int64(r.Header.EdgeOffset) + int64(i)*edge.Size
	if _, err := r.f.ReadAt(buf[:], off); err != nil {
		return edge.Edge{}, fmt.Errorf("aff: read edge %d from %s: %w", i, r.path, err)
	}
	return edge.Decode(buf)
}

// ReadAll decodes every edge in arena order. Decode errors abort the scan;
// callers that want best-effort scanning should use Read directly.
func (r *Reader) ReadAll() ([]edge.Edge, error) {
	out := make([]edge.Edge, 0, r.Header.EdgeCount)
	for i := 0; i < r.Count(); i++ {
		e, err := r.Read(i)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Payload reads length bytes at offset within the payload segment.
func (r *Reader) Payload(offset, length uint32) ([]byte, error) {
	if uint64(offset)+uint64(length) > r.Header.PayloadLength {
		return nil, corrupt("payload range exceeds segment")
	}
	buf := make([]byte, length)
	off := int64(r.Header.PayloadOffset) + int64(offset)
	if length == 0 {
		return buf, nil
	}
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("aff: read payload from %s: %w", r.path, err)
	}
	return buf, nil
}

// Index returns the raw bytes of the optional index segment, or nil if the
// segment was written without one.
func (r *Reader) Index() ([]byte, error) {
	if r.Header.IndexLength == 0 {
		return nil, nil
	}
	buf := make([]byte, r.Header.IndexLength)
	if _, err := r.f.ReadAt(buf, int64(r.Header.IndexOffset)); err != nil {
		return nil, fmt.Errorf("aff: read index from %s: %w", r.path, err)
	}
	return buf, nil
}
