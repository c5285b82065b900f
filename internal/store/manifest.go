package store

import (
	"sync"
	"sync/atomic"
)

// manifest holds the list of sealed segments for one shard. Readers load
// the current slice with a single atomic pointer read and never block on
// writers; writers (flush, compaction) serialize through mu and publish a
// new slice with Store (spec §4.C: "segment manifest: atomic pointer
// swap").
type manifest struct {
	mu  sync.Mutex
	ptr atomic.Pointer[[]*segmentMeta]
}

func newManifest() *manifest {
	m := &manifest{}
	empty := make([]*segmentMeta, 0)
	m.ptr.Store(&empty)
	return m
}

func (m *manifest) load() []*segmentMeta {
	return *m.ptr.Load()
}

// add appends a newly sealed segment to the manifest.
func (m *manifest) add(seg *segmentMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.load()
	next := make([]*segmentMeta, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = seg
	m.ptr.Store(&next)
}

// replace atomically swaps a set of input segments for a single compacted
// output segment (or removes them outright if output is nil, e.g. every
// input edge expired).
func (m *manifest) replace(inputs []*segmentMeta, output *segmentMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()

	drop := make(map[string]bool, len(inputs))
	for _, s := range inputs {
		drop[s.id] = true
	}

	cur := m.load()
	next := make([]*segmentMeta, 0, len(cur)+1)
	for _, s := range cur {
		if drop[s.id] {
			continue
		}
		next = append(next, s)
	}
	if output != nil {
		next = append(next, output)
	}
	m.ptr.Store(&next)
}
