package aff

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Strob0t/CodeForge/internal/edge"
)

// Writer builds one immutable AFF segment file (spec §4.B).
type Writer struct {
	f    *os.File
	path string

	edges   bytes.Buffer
	payload bytes.Buffer
	index   bytes.Buffer

	count  uint32
	minTS  int64
	maxTS  int64
	closed bool
}

// Create truncates (or creates) the file at path and reserves space for the
// 256-byte header, returning a Writer ready to accept edges.
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // segment files are not secrets
	if err != nil {
		return nil, fmt.Errorf("aff: open %s: %w", path, err)
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("aff: reserve header %s: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Add buffers e (and its payload, if present) into the segment. If payload
// is non-empty, e's PayloadOffset/PayloadLength are set to its location
// within the payload segment before encoding.
func (w *Writer) Add(e edge.Edge, payload []byte) error {
	if w.closed {
		return fmt.Errorf("aff: write to closed writer %s", w.path)
	}

	if len(payload) > 0 {
		e.PayloadOffset = uint32(w.payload.Len()) //nolint:gosec // payload segment bounded well under 4GiB
		e.PayloadLength = uint32(len(payload))     //nolint:gosec // spec bounds payload at 16MiB
		e.Flags |= edge.FlagHasPayload
		w.payload.Write(payload)
	}

	buf := edge.Encode(e)
	w.edges.Write(buf[:])

	if w.count == 0 || e.TimestampUS < w.minTS {
		w.minTS = e.TimestampUS
	}
	if w.count == 0 || e.TimestampUS > w.maxTS {
		w.maxTS = e.TimestampUS
	}
	w.count++

	return nil
}

// SetIndex attaches a pre-built index blob (bloom filter + offset table)
// written verbatim into the optional index segment.
func (w *Writer) SetIndex(data []byte) {
	w.index.Reset()
	w.index.Write(data)
}

// Count returns the number of edges buffered so far.
func (w *Writer) Count() uint32 { return w.count }

// Finish flushes edges, then payloads, then the index, seeks to offset 0,
// writes the header, and syncs (spec §4.B). A writer that crashes mid-Finish
// leaves a zeroed header on disk, which Reader.Open treats as corrupt.
func (w *Writer) Finish() error {
	if w.closed {
		return fmt.Errorf("aff: Finish called twice on %s", w.path)
	}
	w.closed = true
	defer func() { _ = w.f.Close() }()

	edgeOff := uint64(HeaderSize)
	edgeLen := uint64(w.edges.Len())
	payloadOff := edgeOff + edgeLen
	payloadLen := uint64(w.payload.Len())
	indexOff := payloadOff + payloadLen
	indexLen := uint64(w.index.Len())

	if _, err := w.f.Write(w.edges.Bytes()); err != nil {
		return fmt.Errorf("aff: write edges %s: %w", w.path, err)
	}
	if _, err := w.f.Write(w.payload.Bytes()); err != nil {
		return fmt.Errorf("aff: write payloads %s: %w", w.path, err)
	}
	if w.index.Len() > 0 {
		if _, err := w.f.Write(w.index.Bytes()); err != nil {
			return fmt.Errorf("aff: write index %s: %w", w.path, err)
		}
	}

	h := Header{
		FormatVersion:  FormatVersion,
		EdgeCount:      w.count,
		MinTimestampUS: w.minTS,
		MaxTimestampUS: w.maxTS,
		EdgeOffset:     edgeOff,
		EdgeLength:     edgeLen,
		PayloadOffset:  payloadOff,
		PayloadLength:  payloadLen,
		IndexOffset:    indexOff,
		IndexLength:    indexLen,
		Compression:    CompressionNone,
	}

	if _, err := w.f.Seek(0, 0); err != nil {
		return fmt.Errorf("aff: seek header %s: %w", w.path, err)
	}
	buf := h.Encode()
	if _, err := w.f.Write(buf[:]); err != nil {
		return fmt.Errorf("aff: write header %s: %w", w.path, err)
	}

	return w.f.Sync()
}

// Abort closes the writer without finishing the header, leaving a file that
// Reader.Open will reject as corrupt (zeroed header).
func (w *Writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.f.Close()
}
