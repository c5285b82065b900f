package store

import (
	"sort"
	"sync"

	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

// memtable is the mutable, in-memory half of a shard, kept sorted by
// edge.Key (spec §4.C). Writers take the write lock; readers (Get,
// RangeScan) take the read lock, so concurrent lookups never block each
// other.
type memtable struct {
	mu       sync.RWMutex
	entries  []edge.Edge
	byID     map[ulid.ID]int
	payloads map[ulid.ID][]byte
	bytes    int
}

func newMemtable() *memtable {
	return &memtable{
		byID:     make(map[ulid.ID]int),
		payloads: make(map[ulid.ID][]byte),
	}
}

// insert adds e (and its payload, if any) in key order. A second insert
// for the same ID — used for tombstones and payload deletes — replaces
// the prior entry in place rather than appending a duplicate.
func (m *memtable) insert(e edge.Edge, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i, ok := m.byID[e.ID]; ok {
		m.entries[i] = e
	} else {
		key := e.Key()
		pos := sort.Search(len(m.entries), func(i int) bool {
			return !m.entries[i].Key().Less(key)
		})
		m.entries = append(m.entries, edge.Edge{})
		copy(m.entries[pos+1:], m.entries[pos:])
		m.entries[pos] = e
		for id, idx := range m.byID {
			if idx >= pos {
				m.byID[id] = idx + 1
			}
		}
		m.byID[e.ID] = pos
	}

	if len(payload) > 0 {
		m.payloads[e.ID] = payload
	}
	m.bytes += edge.Size + len(payload)
}

func (m *memtable) get(id ulid.ID) (edge.Edge, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return edge.Edge{}, false
	}
	return m.entries[i], true
}

func (m *memtable) payload(id ulid.ID) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payloads[id]
	return p, ok
}

func (m *memtable) deletePayload(id ulid.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.payloads, id)
}

// rangeScan returns a copy of every entry with TimestampUS in [lo, hi]
// that matches filters, in key order.
func (m *memtable) rangeScan(lo, hi int64, filters Filters) []edge.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]edge.Edge, 0)
	for _, e := range m.entries {
		if e.TimestampUS < lo || e.TimestampUS > hi {
			continue
		}
		if e.IsTombstone() {
			continue
		}
		if !filters.Match(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (m *memtable) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bytes
}

func (m *memtable) snapshot() []edge.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]edge.Edge, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *memtable) snapshotPayload(id ulid.ID) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.payloads[id]
}
