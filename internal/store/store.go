// Package store implements the Edge Store (spec §4.C): an LSM-shaped,
// per-tenant append-only log of fixed-size edges with write-ahead
// durability, immutable AFF segments, and structural filter indices over
// sealed segments.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strob0t/CodeForge/internal/aff"
	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

// DefaultMemtableMaxBytes bounds the in-memory portion of a shard before a
// flush to an AFF segment is triggered.
const DefaultMemtableMaxBytes = 32 << 20

// Store owns one shard per tenant. Shards are created lazily and never
// removed for the lifetime of the process.
type Store struct {
	dir              string
	memtableMaxBytes int

	// retentionCutoff is the store-wide query-time safety net (spec
	// §4.C/§4.E): reads drop any edge with TimestampUS below this value
	// even if it has not yet been swept by compaction. 0 means unbounded.
	retentionCutoff atomic.Int64

	mu     sync.RWMutex
	shards map[uint64]*shard
}

// Open creates (or reopens) a Store rooted at dir, replaying any WAL
// segments left behind by a prior process for every tenant directory it
// finds under dir/wal.
func Open(dir string, memtableMaxBytes int) (*Store, error) {
	if memtableMaxBytes <= 0 {
		memtableMaxBytes = DefaultMemtableMaxBytes
	}
	for _, sub := range []string{"wal", "segments"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil { //nolint:gosec // local data directory
			return nil, fmt.Errorf("store: mkdir %s: %w", sub, err)
		}
	}

	s := &Store{dir: dir, memtableMaxBytes: memtableMaxBytes, shards: make(map[uint64]*shard)}

	entries, err := os.ReadDir(filepath.Join(dir, "wal"))
	if err != nil {
		return nil, fmt.Errorf("store: read wal dir: %w", err)
	}
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}
		var tenant uint64
		if _, err := fmt.Sscanf(ent.Name(), "%016x", &tenant); err != nil {
			continue
		}
		if _, err := s.getOrCreateShard(tenant); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func tenantHex(tenant uint64) string {
	return fmt.Sprintf("%016x", tenant)
}

func (s *Store) getOrCreateShard(tenant uint64) (*shard, error) {
	s.mu.RLock()
	sh, ok := s.shards[tenant]
	s.mu.RUnlock()
	if ok {
		return sh, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[tenant]; ok {
		return sh, nil
	}

	sh, err := openShard(s.dir, tenant, s.memtableMaxBytes)
	if err != nil {
		return nil, err
	}
	s.shards[tenant] = sh
	return sh, nil
}

func (s *Store) getShard(tenant uint64) (*shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[tenant]
	return sh, ok
}

// Append writes e (and its optional payload) durably and makes it visible
// to Get/RangeScan (spec §4.C: "append").
func (s *Store) Append(e edge.Edge, payload []byte) error {
	sh, err := s.getOrCreateShard(e.TenantID)
	if err != nil {
		return err
	}
	return sh.append(e, payload)
}

// Get returns the edge with id for tenant, following memtable-over-segment
// precedence, or domain.ErrNotFound if it does not exist, is tombstoned, or
// falls before the current retention cutoff.
func (s *Store) Get(tenant uint64, id ulid.ID) (edge.Edge, error) {
	sh, ok := s.getShard(tenant)
	if !ok {
		return edge.Edge{}, domain.ErrNotFound
	}
	e, err := sh.get(id)
	if err != nil {
		return edge.Edge{}, err
	}
	if cutoff := s.retentionCutoff.Load(); cutoff > 0 && e.TimestampUS < cutoff {
		return edge.Edge{}, domain.ErrNotFound
	}
	return e, nil
}

// RangeScan returns every live edge for tenant with TimestampUS in [lo, hi]
// matching filters, sorted by key (spec §4.C: "range_scan"). The effective
// lower bound is raised to the current retention cutoff, if any, as the
// query-time safety net required by spec §4.C/§4.E.
func (s *Store) RangeScan(tenant uint64, lo, hi int64, filters Filters) ([]edge.Edge, error) {
	sh, ok := s.getShard(tenant)
	if !ok {
		return nil, nil
	}
	if cutoff := s.retentionCutoff.Load(); cutoff > lo {
		lo = cutoff
	}
	return sh.rangeScan(lo, hi, filters)
}

// SetRetentionCutoff records cutoffUS as the store-wide query-time safety
// net: Get/RangeScan will treat any edge with TimestampUS < cutoffUS as
// absent, independent of whether compaction has swept it yet (spec §4.C:
// "Query-time filtering also drops any edge with timestamp_us < cutoff_us
// as a safety net"). A cutoffUS of 0 disables the safety net.
func (s *Store) SetRetentionCutoff(cutoffUS int64) {
	s.retentionCutoff.Store(cutoffUS)
}

// RetentionCutoff returns the cutoff last recorded by SetRetentionCutoff.
func (s *Store) RetentionCutoff() int64 {
	return s.retentionCutoff.Load()
}

// Delete tombstones the edge with id for tenant (spec §4.C: "delete").
func (s *Store) Delete(tenant uint64, id ulid.ID) error {
	sh, ok := s.getShard(tenant)
	if !ok {
		return domain.ErrNotFound
	}
	return sh.delete(id)
}

// PutPayload attaches or replaces the payload for an existing edge.
func (s *Store) PutPayload(tenant uint64, id ulid.ID, payload []byte) error {
	sh, ok := s.getShard(tenant)
	if !ok {
		return domain.ErrNotFound
	}
	return sh.putPayload(id, payload)
}

// GetPayload returns the payload bytes for id, or domain.ErrNotFound if the
// edge has none.
func (s *Store) GetPayload(tenant uint64, id ulid.ID) ([]byte, error) {
	sh, ok := s.getShard(tenant)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return sh.getPayload(id)
}

// DeletePayload removes the payload for id while leaving the edge itself
// in place.
func (s *Store) DeletePayload(tenant uint64, id ulid.ID) error {
	sh, ok := s.getShard(tenant)
	if !ok {
		return domain.ErrNotFound
	}
	return sh.deletePayload(id)
}

// Usage reports the on-disk and in-memory bytes attributed to tenant
// (storage usage accounting endpoint).
func (s *Store) Usage(tenant uint64) (int64, error) {
	sh, ok := s.getShard(tenant)
	if !ok {
		return 0, nil
	}
	return sh.usage()
}

// Tenants returns every tenant with a shard currently open.
func (s *Store) Tenants() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint64, 0, len(s.shards))
	for t := range s.shards {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Compact runs one compaction pass for tenant, dropping tombstones and
// edges older than cutoffUS. It is exported so a background scheduler
// (internal/retention) can drive it on its own cadence.
func (s *Store) Compact(tenant uint64, cutoffUS int64) error {
	sh, ok := s.getShard(tenant)
	if !ok {
		return nil
	}
	return sh.compact(cutoffUS)
}

// shard owns one tenant's memtable, WAL, and sealed-segment manifest.
type shard struct {
	tenant   uint64
	walDir   string
	segDir   string
	maxBytes int

	mu       sync.Mutex
	mt       *memtable
	w        *wal
	walPath  string
	manifest *manifest
}

func openShard(rootDir string, tenant uint64, maxBytes int) (*shard, error) {
	hex := tenantHex(tenant)
	walDir := filepath.Join(rootDir, "wal", hex)
	segDir := filepath.Join(rootDir, "segments", hex)
	for _, d := range []string{walDir, segDir} {
		if err := os.MkdirAll(d, 0o755); err != nil { //nolint:gosec // local data directory
			return nil, fmt.Errorf("store: mkdir %s: %w", d, err)
		}
	}

	sh := &shard{
		tenant:   tenant,
		walDir:   walDir,
		segDir:   segDir,
		maxBytes: maxBytes,
		mt:       newMemtable(),
		manifest: newManifest(),
	}

	if err := sh.recoverSegments(); err != nil {
		return nil, err
	}
	if err := sh.recoverWAL(); err != nil {
		return nil, err
	}
	if sh.w == nil {
		if err := sh.rotateWAL(); err != nil {
			return nil, err
		}
	}

	return sh, nil
}

func (sh *shard) recoverSegments() error {
	entries, err := os.ReadDir(sh.segDir)
	if err != nil {
		return fmt.Errorf("store: read segment dir %s: %w", sh.segDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() && filepath.Ext(ent.Name()) == ".aff" {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(sh.segDir, name)
		edges, r, err := readSegmentEdges(path)
		if err != nil {
			return err
		}
		meta := metaFromReader(name, path, r, edges)
		_ = r.Close()
		sh.manifest.add(meta)
	}
	return nil
}

func (sh *shard) recoverWAL() error {
	entries, err := os.ReadDir(sh.walDir)
	if err != nil {
		return fmt.Errorf("store: read wal dir %s: %w", sh.walDir, err)
	}
	var names []string
	for _, ent := range entries {
		if !ent.IsDir() {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}

	// Only the most recent WAL file can still be open; any earlier ones
	// indicate a crash between rotate and flush cleanup, so replay all of
	// them into the memtable in order and keep the last as the live log.
	for _, name := range names {
		path := filepath.Join(sh.walDir, name)
		records, err := replayWAL(path)
		if err != nil {
			return err
		}
		for _, rec := range records {
			sh.mt.insert(rec.Edge, rec.Payload)
		}
	}

	last := filepath.Join(sh.walDir, names[len(names)-1])
	w, err := openWAL(last)
	if err != nil {
		return err
	}
	sh.w = w
	sh.walPath = last
	return nil
}

func (sh *shard) rotateWAL() error {
	id, err := ulid.New(time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: generate wal id: %w", err)
	}
	path := filepath.Join(sh.walDir, id.String()+".log")
	w, err := openWAL(path)
	if err != nil {
		return err
	}
	sh.w = w
	sh.walPath = path
	return nil
}

func (sh *shard) append(e edge.Edge, payload []byte) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if err := sh.w.Append(e, payload); err != nil {
		return err
	}
	sh.mt.insert(e, payload)

	if sh.mt.size() >= sh.maxBytes {
		return sh.flushLocked()
	}
	return nil
}

// flushLocked seals the current memtable into an AFF segment and rotates
// the WAL. Callers must hold sh.mu.
func (sh *shard) flushLocked() error {
	entries := sh.mt.snapshot()
	if len(entries) == 0 {
		return nil
	}

	oldWALPath := sh.walPath
	if err := sh.w.Close(); err != nil {
		return fmt.Errorf("store: close wal before flush: %w", err)
	}

	segID, err := ulid.New(time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: generate segment id: %w", err)
	}
	name := segID.String() + ".aff"
	path := filepath.Join(sh.segDir, name)

	w, err := aff.Create(path)
	if err != nil {
		return err
	}
	for _, e := range entries {
		var payload []byte
		if e.HasPayload() {
			payload = sh.mt.snapshotPayload(e.ID)
		}
		if err := w.Add(e, payload); err != nil {
			_ = w.Abort()
			return err
		}
	}
	if err := w.Finish(); err != nil {
		return err
	}

	r, err := aff.Open(path)
	if err != nil {
		return err
	}
	meta := metaFromReader(name, path, r, entries)
	_ = r.Close()
	sh.manifest.add(meta)

	sh.mt = newMemtable()
	if err := sh.rotateWAL(); err != nil {
		return err
	}
	if oldWALPath != "" {
		_ = os.Remove(oldWALPath)
	}
	return nil
}

func metaFromReader(name, path string, r *aff.Reader, edges []edge.Edge) *segmentMeta {
	idBloom, byAgent, bySess, byProj, errorSet := buildSegmentIndex(edges)
	info, _ := os.Stat(path)
	var size int64
	if info != nil {
		size = info.Size()
	}
	return &segmentMeta{
		id:       name,
		path:     path,
		minTS:    r.Header.MinTimestampUS,
		maxTS:    r.Header.MaxTimestampUS,
		edgeCnt:  r.Header.EdgeCount,
		bytes:    size,
		state:    segmentIndexed,
		idBloom:  idBloom,
		byAgent:  byAgent,
		bySess:   bySess,
		byProj:   byProj,
		errorSet: errorSet,
	}
}

func (sh *shard) get(id ulid.ID) (edge.Edge, error) {
	if e, ok := sh.mt.get(id); ok {
		if e.IsTombstone() {
			return edge.Edge{}, domain.ErrNotFound
		}
		return e, nil
	}

	segs := sh.manifest.load()
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if !s.mayContainID(id) {
			continue
		}
		edges, r, err := readSegmentEdges(s.path)
		if err != nil {
			return edge.Edge{}, err
		}
		_ = r.Close()
		for _, e := range edges {
			if e.ID == id {
				if e.IsTombstone() {
					return edge.Edge{}, domain.ErrNotFound
				}
				return e, nil
			}
		}
	}

	return edge.Edge{}, domain.ErrNotFound
}

func (sh *shard) rangeScan(lo, hi int64, filters Filters) ([]edge.Edge, error) {
	results := make(map[ulid.ID]edge.Edge)

	segs := sh.manifest.load()
	for _, s := range segs {
		if !s.overlaps(lo, hi) || !s.mayContain(filters) {
			continue
		}
		edges, r, err := readSegmentEdges(s.path)
		if err != nil {
			return nil, err
		}
		_ = r.Close()
		for _, e := range edges {
			if e.TimestampUS < lo || e.TimestampUS > hi {
				continue
			}
			if e.IsTombstone() {
				delete(results, e.ID)
				continue
			}
			if !filters.Match(e) {
				continue
			}
			results[e.ID] = e
		}
	}

	for _, e := range sh.mt.snapshot() {
		if e.TimestampUS < lo || e.TimestampUS > hi || e.IsTombstone() || !filters.Match(e) {
			delete(results, e.ID)
			continue
		}
		results[e.ID] = e
	}

	out := make([]edge.Edge, 0, len(results))
	for _, e := range results {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

func (sh *shard) delete(id ulid.ID) error {
	e, err := sh.get(id)
	if err != nil {
		return err
	}
	e.Flags |= edge.FlagTombstone
	e.Flags &^= edge.FlagHasPayload
	e.PayloadOffset = 0
	e.PayloadLength = 0

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.w.Append(e, nil); err != nil {
		return err
	}
	sh.mt.insert(e, nil)
	sh.mt.deletePayload(id)
	return nil
}

func (sh *shard) putPayload(id ulid.ID, payload []byte) error {
	e, err := sh.get(id)
	if err != nil {
		return err
	}
	e.Flags |= edge.FlagHasPayload

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.w.Append(e, payload); err != nil {
		return err
	}
	sh.mt.insert(e, payload)
	return nil
}

func (sh *shard) getPayload(id ulid.ID) ([]byte, error) {
	if p, ok := sh.mt.payload(id); ok {
		return p, nil
	}

	e, err := sh.get(id)
	if err != nil {
		return nil, err
	}
	if !e.HasPayload() {
		return nil, domain.ErrNotFound
	}

	segs := sh.manifest.load()
	for i := len(segs) - 1; i >= 0; i-- {
		s := segs[i]
		if !s.overlaps(e.TimestampUS, e.TimestampUS) {
			continue
		}
		r, err := aff.Open(s.path)
		if err != nil {
			return nil, err
		}
		payload, err := r.Payload(e.PayloadOffset, e.PayloadLength)
		_ = r.Close()
		if err == nil {
			return payload, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (sh *shard) deletePayload(id ulid.ID) error {
	e, err := sh.get(id)
	if err != nil {
		return err
	}
	if !e.HasPayload() {
		return nil
	}
	e.Flags &^= edge.FlagHasPayload
	e.PayloadOffset = 0
	e.PayloadLength = 0

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if err := sh.w.Append(e, nil); err != nil {
		return err
	}
	sh.mt.insert(e, nil)
	sh.mt.deletePayload(id)
	return nil
}

func (sh *shard) usage() (int64, error) {
	var total int64
	for _, s := range sh.manifest.load() {
		total += s.bytes
	}
	if info, err := os.Stat(sh.walPath); err == nil {
		total += info.Size()
	}
	total += int64(sh.mt.size())
	return total, nil
}
