package store

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/Strob0t/CodeForge/internal/edge"
)

// wal is the write-ahead log backing one shard's memtable (spec §4.C:
// "every append is written to wal/<tenant_hex>/<wal_id>.log before being
// visible in the memtable"). Each record is a fixed 128-byte edge followed
// by a uint32 payload length and the payload bytes, if any.
type wal struct {
	f    *os.File
	path string
	w    *bufio.Writer
}

func openWAL(path string) (*wal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644) //nolint:gosec // WAL segments are not secrets
	if err != nil {
		return nil, fmt.Errorf("store: open wal %s: %w", path, err)
	}
	return &wal{f: f, path: path, w: bufio.NewWriter(f)}, nil
}

// Append writes one record and flushes it to the OS, so the record
// survives a process crash. Surviving a power loss additionally requires
// Sync, which nothing in the store calls.
func (w *wal) Append(e edge.Edge, payload []byte) error {
	buf := edge.Encode(e)
	if _, err := w.w.Write(buf[:]); err != nil {
		return fmt.Errorf("store: wal append %s: %w", w.path, err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload))) //nolint:gosec // payload bounded at 16MiB
	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("store: wal append %s: %w", w.path, err)
	}
	if len(payload) > 0 {
		if _, err := w.w.Write(payload); err != nil {
			return fmt.Errorf("store: wal append %s: %w", w.path, err)
		}
	}
	return w.w.Flush()
}

// Sync forces buffered writes to stable storage.
func (w *wal) Sync() error {
	return w.f.Sync()
}

// Close flushes and releases the underlying file handle.
func (w *wal) Close() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

// walRecord is one decoded entry produced by replayWAL.
type walRecord struct {
	Edge    edge.Edge
	Payload []byte
}

// replayWAL reads every record from path in order, used to rebuild a
// shard's memtable after a restart that found no newer sealed segment
// covering the WAL's edges.
func replayWAL(path string) ([]walRecord, error) {
	f, err := os.Open(path) //nolint:gosec // path constructed by the store from its own wal directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: replay wal %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var out []walRecord
	for {
		var buf [edge.Size]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			if err == io.EOF {
				break
			}
			// A short read at the tail means the last record was never
			// fully flushed before a crash; stop replay here rather than
			// surfacing a corruption error for an otherwise-valid log.
			if err == io.ErrUnexpectedEOF {
				break
			}
			return nil, fmt.Errorf("store: replay wal %s: %w", path, err)
		}

		e, err := edge.Decode(buf)
		if err != nil {
			break
		}

		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			break
		}
		plen := binary.LittleEndian.Uint32(lenBuf[:])
		var payload []byte
		if plen > 0 {
			payload = make([]byte, plen)
			if _, err := io.ReadFull(r, payload); err != nil {
				break
			}
		}

		out = append(out, walRecord{Edge: e, Payload: payload})
	}
	return out, nil
}
